package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePasswordResetEmail(t *testing.T) {
	html, text := GeneratePasswordResetEmail("Alice", "https://x/y", "a@b.com")

	assert.Contains(t, html, "https://x/y")
	assert.Contains(t, html, "Alice")
	assert.Contains(t, html, "15 minutes")

	assert.Contains(t, text, "https://x/y")
	assert.Contains(t, text, "Reset password (https://x/y)")
	assert.Contains(t, text, "15 minutes")
	assert.False(t, strings.ContainsAny(text, "<>"), "text body should carry no markup: %q", text)
}

func TestGeneratePasswordResetEmail_EscapesValues(t *testing.T) {
	html, _ := GeneratePasswordResetEmail("<script>alert(1)</script>", "https://x/y", "a@b.com")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestGeneratePasswordResetEmail_DefaultName(t *testing.T) {
	_, text := GeneratePasswordResetEmail("", "https://x/y", "a@b.com")
	assert.Contains(t, text, "Hi there,")
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>One</p><p>Two</p>", "One\nTwo"},
		{"line break", "a<br>b", "a\nb"},
		{"link", `<a href="https://x">click</a>`, "click (https://x)"},
		{"bare link", `<a href="https://x">https://x</a>`, "https://x"},
		{"drops style", "<style>p{color:red}</style><p>Hi</p>", "Hi"},
		{"entities", "<p>Tom &amp; Jerry</p>", "Tom & Jerry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.in))
		})
	}
}
