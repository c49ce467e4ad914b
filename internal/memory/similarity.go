package memory

import (
	"math"
	"strings"
)

const (
	poorRank          = 999.0
	substringBoost    = 0.2
	pathBoostCeiling  = 0.15
	maxLexicalTokens  = 8
	snippetMaxRunes   = 700
	snippetEllipsis   = "..."
	candidateMultiple = 4
)

// CosineSimilarity computes the cosine similarity of a and b over their
// common prefix. Returns 0 if either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeRank maps a lower-is-better rank into (0, 1] via 1/(1+rank).
// Negative or undefined ranks score as a poor rank.
func NormalizeRank(rank float64) float64 {
	if math.IsNaN(rank) || math.IsInf(rank, 0) || rank < 0 {
		rank = poorRank
	}
	return 1 / (1 + rank)
}

// LexicalOverlap scores how well text (found at path) covers the query:
// the fraction of query tokens present in text, +0.2 when the whole query
// appears verbatim, and up to +0.15 for query tokens present in the path.
// The result is capped at 1.
func LexicalOverlap(query, path, text string) float64 {
	qTokens := uniqueTokens(Tokenize(query))
	lowerText := strings.ToLower(text)
	trimmed := strings.ToLower(strings.TrimSpace(query))

	var score float64
	if len(qTokens) > 0 {
		textSet := tokenSet(Tokenize(text))
		pathSet := tokenSet(Tokenize(path))
		var inText, inPath int
		for _, t := range qTokens {
			if _, ok := textSet[t]; ok {
				inText++
			}
			if _, ok := pathSet[t]; ok {
				inPath++
			}
		}
		score = float64(inText) / float64(len(qTokens))
		score += pathBoostCeiling * float64(inPath) / float64(len(qTokens))
	}
	if trimmed != "" && strings.Contains(lowerText, trimmed) {
		score += substringBoost
	}
	return math.Min(score, 1)
}

// lexicalTokens returns up to maxLexicalTokens distinct query tokens for the
// full-text path.
func lexicalTokens(query string) []string {
	tokens := uniqueTokens(Tokenize(query))
	if len(tokens) > maxLexicalTokens {
		tokens = tokens[:maxLexicalTokens]
	}
	return tokens
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// makeSnippet collapses whitespace and truncates to snippetMaxRunes.
func makeSnippet(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= snippetMaxRunes {
		return collapsed
	}
	return string(runes[:snippetMaxRunes]) + snippetEllipsis
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
