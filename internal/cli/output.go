// Package cli provides output formatting and an API client for the querylinker command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one suggestion per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes a search response to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
	default:
		writeSearchResultsText(w, response)
	}
	return nil
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	ordering := "system order"
	if response.Semantic {
		ordering = "semantic ranking"
	}
	fmt.Fprintf(w, "\nFound %d suggestions for %q in %dms (%s)\n\n",
		len(response.Suggestions), response.Query, response.QueryTime, ordering)
	for i, result := range response.Suggestions {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if response.Semantic {
			fmt.Fprintf(w, "%d. [%s] %s  (score %.4f)\n", i+1, result.System, result.Title, result.Score)
		} else {
			fmt.Fprintf(w, "%d. [%s] %s\n", i+1, result.System, result.Title)
		}
		fmt.Fprintf(w, "ID: %s\n", result.ID)
		if result.Link != "" {
			fmt.Fprintf(w, "Link: %s\n", result.Link)
		}
		if result.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Snippet, 200))
		}
		fmt.Fprintln(w)
	}
	writeFailures(w, response.Errors)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, result := range response.Suggestions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", result.System, result.ID, result.Title, result.Link)
	}
	writeFailures(w, response.Errors)
}

func writeFailures(w io.Writer, failures map[string]string) {
	if len(failures) == 0 {
		return
	}
	systems := make([]string, 0, len(failures))
	for system := range failures {
		systems = append(systems, system)
	}
	sort.Strings(systems)
	fmt.Fprintln(w, "Unavailable systems:")
	for _, system := range systems {
		fmt.Fprintf(w, "  %s: %s\n", system, failures[system])
	}
}
