package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

const snippetWidth = 72

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cell flattens s to one line and truncates it to width display columns,
// so wide (CJK, emoji) runes do not break the table.
func cell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

func formatTimestamp(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func printResults(w io.Writer, results []memory.Result, withScore bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withScore {
		fmt.Fprintf(tw, "SCORE\tID\tLOCATION\tMODIFIED\tSNIPPET\n")
	} else {
		fmt.Fprintf(tw, "ID\tLOCATION\tMODIFIED\tSNIPPET\n")
	}
	for _, r := range results {
		loc := fmt.Sprintf("%s:%d-%d", r.Path, r.StartLine, r.EndLine)
		if withScore {
			fmt.Fprintf(tw, "%.3f\t", r.Score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, cell(loc, 40), formatTimestamp(r.Timestamp), cell(r.Snippet, snippetWidth))
	}
	tw.Flush()
}

func printDetails(w io.Writer, details []memory.Detail) {
	if len(details) == 0 {
		fmt.Fprintln(w, "No chunks found.")
		return
	}
	for i, d := range details {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "ID:       %s\n", d.ID)
		fmt.Fprintf(w, "Location: %s:%d-%d\n", d.Path, d.StartLine, d.EndLine)
		fmt.Fprintf(w, "Modified: %s\n", formatTimestamp(d.Timestamp))
		fmt.Fprintf(w, "Tokens:   %d\n", d.Tokens)
		fmt.Fprintln(w, "--- Content ---")
		fmt.Fprintln(w, d.Text)
	}
}

func printStats(w io.Writer, ws string, s memory.SyncStats, elapsed time.Duration) {
	if s.Aborted {
		fmt.Fprintf(w, "Sync of %s aborted (superseded).\n", ws)
		return
	}
	fmt.Fprintf(w, "Synced %s in %s\n", ws, elapsed.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  scanned\t%d\n", s.Scanned)
	fmt.Fprintf(tw, "  unchanged\t%d\n", s.Unchanged)
	fmt.Fprintf(tw, "  touched\t%d\n", s.Touched)
	fmt.Fprintf(tw, "  reindexed\t%d\n", s.Reindexed)
	fmt.Fprintf(tw, "  removed\t%d\n", s.Removed)
	fmt.Fprintf(tw, "  skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "  chunks\t%d\n", s.Chunks)
	tw.Flush()
}
