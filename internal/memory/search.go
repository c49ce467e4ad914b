package memory

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	vectorWeight  = 0.55
	textWeight    = 0.45
	hybridWeight  = 0.75
	overlapWeight = 0.25
)

type candidate struct {
	chunk  Chunk
	vector float64
	text   float64
}

type scoredChunk struct {
	chunk Chunk
	score float64
}

// Search runs hybrid lexical + vector retrieval over workspaceID and returns
// at most limit results, best first. It schedules a background sync of root
// and serves what is currently stored. A blank query or non-positive limit
// yields an empty list; store failures degrade to fewer results.
func (m *Manager) Search(ctx context.Context, workspaceID, root, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Result{}, nil
	}
	m.ScheduleSync(workspaceID, root, false)

	ctx, span := m.tracer.Start(ctx, "memory.search")
	defer span.End()

	// Huge limits mean "everything"; keep the candidate cap from overflowing.
	limit = min(limit, math.MaxInt/candidateMultiple)
	maxCandidates := limit * candidateMultiple
	candidates := make(map[string]*candidate)
	get := func(c Chunk) *candidate {
		cand, ok := candidates[c.ID]
		if !ok {
			cand = &candidate{chunk: c}
			candidates[c.ID] = cand
		}
		return cand
	}

	lexical := m.lexicalCandidates(ctx, workspaceID, query, maxCandidates)
	for _, sc := range lexical {
		cand := get(sc.chunk)
		cand.text = max(cand.text, sc.score)
	}
	vector := m.vectorCandidates(ctx, workspaceID, query, maxCandidates)
	for _, sc := range vector {
		cand := get(sc.chunk)
		cand.vector = max(cand.vector, sc.score)
	}

	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		r := toResult(cand.chunk, 0)
		hybrid := vectorWeight*cand.vector + textWeight*cand.text
		r.Score = clamp01(hybridWeight*hybrid + overlapWeight*LexicalOverlap(query, r.Path, r.Snippet))
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].StartLine < results[j].StartLine
	})
	if len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(
		attribute.String("memory.workspace", workspaceID),
		attribute.Int("memory.limit", limit),
		attribute.Int("memory.lexical_candidates", len(lexical)),
		attribute.Int("memory.vector_candidates", len(vector)),
		attribute.Int("memory.results", len(results)),
	)
	return results, nil
}

// lexicalCandidates prefers the ranked full-text index, scoring by row order,
// and falls back to substring matching scored by lexical overlap.
func (m *Manager) lexicalCandidates(ctx context.Context, workspaceID, query string, limit int) []scoredChunk {
	tokens := lexicalTokens(query)
	if len(tokens) > 0 {
		rows, err := m.store.SearchLexical(ctx, workspaceID, tokens, limit)
		if err == nil {
			out := make([]scoredChunk, 0, len(rows))
			for i, c := range rows {
				out = append(out, scoredChunk{chunk: c, score: NormalizeRank(float64(i))})
			}
			return out
		}
		if !errors.Is(err, ErrLexicalUnavailable) {
			slog.Debug("memory search: full-text query failed, using substring match", "workspace", workspaceID, "error", err)
		}
	}

	containsTokens := tokens
	if len(containsTokens) == 0 {
		containsTokens = []string{strings.ToLower(strings.TrimSpace(query))}
	}
	rows, err := m.store.SearchContains(ctx, workspaceID, containsTokens, limit)
	if err != nil {
		slog.Warn("memory search: substring query failed", "workspace", workspaceID, "error", err)
		return nil
	}
	out := make([]scoredChunk, 0, len(rows))
	for _, c := range rows {
		out = append(out, scoredChunk{chunk: c, score: LexicalOverlap(query, c.Path, c.Text)})
	}
	return out
}

// vectorCandidates ranks cached chunks by cosine similarity to the query embedding.
func (m *Manager) vectorCandidates(ctx context.Context, workspaceID, query string, limit int) []scoredChunk {
	qv := m.cfg.Embedder.Embed(query)
	if IsZeroVector(qv) {
		return nil
	}
	chunks, err := m.cache.Get(ctx, workspaceID)
	if err != nil {
		slog.Warn("memory search: load chunks failed", "workspace", workspaceID, "error", err)
		return nil
	}

	var out []scoredChunk
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if s := CosineSimilarity(qv, c.Embedding); s > 0 {
			out = append(out, scoredChunk{chunk: c, score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].chunk.Path != out[j].chunk.Path {
			return out[i].chunk.Path < out[j].chunk.Path
		}
		return out[i].chunk.StartLine < out[j].chunk.StartLine
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
