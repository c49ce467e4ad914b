package memory

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultEmbeddingDims is the vector length produced by HashEmbedder.
const DefaultEmbeddingDims = 256

const (
	seedPrimary   uint32 = 0x9e3779b1
	seedSecondary uint32 = 0x85ebca77
	seedBigram    uint32 = 0xc2b2ae3d

	bigramBoost = 0.25
)

// Embedder maps text to a fixed-dimension vector.
// Retrieval only depends on this interface, so a model-backed implementation
// can replace HashEmbedder without touching search.
type Embedder interface {
	Name() string
	Dims() int
	Embed(text string) []float32
}

// HashEmbedder is a deterministic, model-free embedder: a signed hashed
// bag of tokens plus adjacent-token bigrams, L2-normalized.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. dims <= 0 selects DefaultEmbeddingDims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultEmbeddingDims
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Name() string { return "hash-bow-v1" }
func (e *HashEmbedder) Dims() int    { return e.dims }

// Embed returns a unit vector, or the zero vector when text has no scorable tokens.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float64, e.dims)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return make([]float32, e.dims)
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for tok, n := range counts {
		w := 1 + math.Log(1+float64(n))
		vec[hashIndex(tok, seedPrimary, e.dims)] += w
		vec[hashIndex(tok, seedSecondary, e.dims)] -= w / 2
	}
	for i := 1; i < len(tokens); i++ {
		vec[hashIndex(tokens[i-1]+" "+tokens[i], seedBigram, e.dims)] += bigramBoost
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// hashIndex is seeded 32-bit FNV-1a reduced to [0, dims).
func hashIndex(s string, seed uint32, dims int) int {
	h := uint32(2166136261) ^ seed
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h % uint32(dims))
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_-]+`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "so": {}, "such": {}, "that": {}, "the": {}, "their": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {}, "were": {},
	"will": {}, "with": {}, "you": {}, "your": {}, "i": {}, "me": {}, "my": {}, "do": {}, "did": {},
	"been": {}, "can": {}, "could": {}, "would": {}, "should": {}, "than": {}, "them": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "how": {}, "all": {}, "any": {},
	"some": {}, "just": {}, "also": {}, "about": {}, "over": {}, "under": {}, "up": {}, "down": {},
	"out": {}, "off": {}, "very": {}, "too": {}, "only": {}, "own": {}, "same": {}, "other": {},
}

// Tokenize folds text (NFKC, lowercase) and returns its scorable tokens in
// order: letter/digit/underscore/hyphen runs longer than one character that
// are not stop words. Fullwidth and compatibility forms match their plain
// spelling.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(norm.NFKC.String(text)), -1)
	tokens := raw[:0]
	for _, t := range raw {
		t = strings.Trim(t, "-")
		if len([]rune(t)) <= 1 {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}
