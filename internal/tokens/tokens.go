// Package tokens estimates token counts for detail records.
package tokens

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by NewEstimator.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens with a tiktoken encoding. When the encoding
// cannot be loaded (offline, unknown name) it falls back to Approx.
type Estimator struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an Estimator for the named encoding.
// An empty name selects DefaultEncoding. The encoding loads on first use.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Estimator{encoding: encoding}
}

func (e *Estimator) load() {
	enc, err := tiktoken.GetEncoding(e.encoding)
	if err != nil {
		slog.Warn("tokens: encoding unavailable, using heuristic", "encoding", e.encoding, "error", err)
		return
	}
	e.enc = enc
}

// Count returns the token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.load)
	if e.enc == nil {
		return Approx(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from the BPE encoding.
func (e *Estimator) Exact() bool {
	e.once.Do(e.load)
	return e.enc != nil
}

// Approx is the length heuristic: about four bytes per token, rounded up.
func Approx(text string) int {
	return (len(text) + 3) / 4
}

// Heuristic adapts Approx to the estimator interface.
type Heuristic struct{}

func (Heuristic) Count(text string) int { return Approx(text) }
