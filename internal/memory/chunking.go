package memory

import (
	"strings"
)

// ChunkerConfig sizes chunks in characters and sets the line overlap between
// consecutive chunks.
type ChunkerConfig struct {
	TargetChars  int // hard cap: a chunk ends once it reaches this size
	MinChars     int // below this size boundary lines do not end a chunk
	OverlapLines int // trailing lines repeated at the start of the next chunk
}

// DefaultChunkerConfig returns the default chunk sizing.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetChars:  1200,
		MinChars:     300,
		OverlapLines: 2,
	}
}

// TextChunk is a chunk of text with 1-based inclusive line numbers.
type TextChunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// ChunkText splits text into line-range chunks. A chunk grows until it reaches
// TargetChars, or stops in front of a blank or heading line once it holds at
// least MinChars. Consecutive chunks share up to OverlapLines lines.
func ChunkText(text string, cfg ChunkerConfig) []TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if cfg.TargetChars <= 0 {
		cfg.TargetChars = 1200
	}
	if cfg.MinChars < 0 || cfg.MinChars > cfg.TargetChars {
		cfg.MinChars = cfg.TargetChars / 4
	}
	if cfg.OverlapLines < 0 {
		cfg.OverlapLines = 0
	}

	lines := strings.Split(text, "\n")
	var chunks []TextChunk

	cursor := 0
	for cursor < len(lines) {
		size := 0
		end := cursor
		for end < len(lines) {
			line := lines[end]
			if end > cursor && size >= cfg.MinChars && isBoundaryLine(line) {
				break
			}
			size += len(line) + 1
			end++
			if size >= cfg.TargetChars {
				break
			}
		}

		content := strings.TrimSpace(strings.Join(lines[cursor:end], "\n"))
		if content != "" {
			chunks = append(chunks, TextChunk{
				Text:      content,
				StartLine: cursor + 1,
				EndLine:   end,
			})
		}

		if end >= len(lines) {
			break
		}
		cursor = max(cursor+1, end-cfg.OverlapLines)
	}

	return chunks
}

// isBoundaryLine reports whether a chunk may end in front of line.
func isBoundaryLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}
