package pg

import (
	"strings"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

// chunkRow is the scan target for chunks rows.
type chunkRow struct {
	ID          string `db:"id"`
	WorkspaceID string `db:"workspace_id"`
	Path        string `db:"path"`
	StartLine   int    `db:"start_line"`
	EndLine     int    `db:"end_line"`
	Text        string `db:"text"`
	Embedding   string `db:"embedding"`
	MTime       int64  `db:"mtime"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (r chunkRow) toChunk() memory.Chunk {
	return memory.Chunk{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Path:        r.Path,
		StartLine:   r.StartLine,
		EndLine:     r.EndLine,
		Text:        r.Text,
		Embedding:   memory.DecodeEmbedding(r.Embedding),
		MTime:       r.MTime,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toChunks(rows []chunkRow) []memory.Chunk {
	out := make([]memory.Chunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toChunk())
	}
	return out
}

func fromChunks(chunks []memory.Chunk) []chunkRow {
	rows := make([]chunkRow, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, chunkRow{
			ID:          c.ID,
			WorkspaceID: c.WorkspaceID,
			Path:        c.Path,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			Text:        c.Text,
			Embedding:   memory.EncodeEmbedding(c.Embedding),
			MTime:       c.MTime,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return rows
}

// escapeLike escapes ILIKE wildcards so tokens match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// plainQuery joins tokens for plainto_tsquery, which ANDs every word.
func plainQuery(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
