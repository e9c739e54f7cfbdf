package mcp

import (
	"fmt"
	"strings"
)

const maxSnippet = 600

// FormatSearchResults renders passages as markdown for clients that only
// read text content.
func FormatSearchResults(query string, out SearchOutput) string {
	var sb strings.Builder
	if out.Indexing != nil {
		fmt.Fprintf(&sb, "> Indexing in progress: %.1f%% (%d/%d documents). Results may be incomplete.\n\n",
			out.Indexing.ProgressPct, out.Indexing.DocsDone, out.Indexing.DocsTotal)
	}
	if len(out.Results) == 0 {
		fmt.Fprintf(&sb, "No results found for %q", query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Results for %q\n\n", query)
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s [%d:%d] (score %.3f)\n\n", i+1, r.DocumentID, r.Start, r.End, r.Score)
		switch {
		case r.Stale:
			sb.WriteString("_source changed since indexing; re-index to refresh_\n\n")
		case r.Text != "":
			sb.WriteString("```\n")
			sb.WriteString(snippet(r.Text))
			sb.WriteString("\n```\n\n")
		}
	}
	return sb.String()
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxSnippet {
		return text
	}
	cut := maxSnippet
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
