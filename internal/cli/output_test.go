package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/querylinker/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "database timeout",
		QueryTime: 42,
		Semantic:  true,
		Suggestions: []*models.SearchResult{
			{System: "jira", ID: "OPS-12", Title: "DB pool exhausted", Snippet: "Connections time out under load", Link: "https://acme.atlassian.net/browse/OPS-12", Score: 0.91},
			{System: "github", ID: "acme/api#7", Title: "Raise pool size", Link: "https://github.com/acme/api/issues/7", Score: 0.4},
		},
		Errors: map[string]string{"slack": "slack: 401 invalid_auth"},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "database timeout" || len(decoded.Suggestions) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Errors["slack"] == "" {
		t.Error("errors should survive encoding")
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 2 suggestions", "42ms", "semantic ranking",
		"1. [jira] DB pool exhausted", "score 0.9100", "ID: OPS-12",
		"Link: https://github.com/acme/api/issues/7", "Connections time out",
		"Unavailable systems:", "slack: slack: 401",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_textWithoutRanking(t *testing.T) {
	resp := sampleResponse()
	resp.Semantic = false
	resp.Errors = nil
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, resp, OutputText)
	out := buf.String()
	if strings.Contains(out, "score") || strings.Contains(out, "Unavailable") {
		t.Errorf("unexpected score or failures in output:\n%s", out)
	}
	if !strings.Contains(out, "system order") {
		t.Errorf("expected system order note:\n%s", out)
	}
}

func TestWriteSearchResults_compact(t *testing.T) {
	resp := sampleResponse()
	resp.Errors = nil
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, resp, OutputCompact)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "jira\tOPS-12\tDB pool exhausted\thttps://acme.atlassian.net/browse/OPS-12" {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{Query: "x"}, SearchOutputFormat("unknown")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 suggestions") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchOutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"compact", OutputCompact, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
