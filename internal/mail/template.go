package mail

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/querylinker/pkg/utils"
)

// PasswordResetSubject is the subject line of the password-reset email.
const PasswordResetSubject = "Reset your QueryLinker password"

var passwordResetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Reset your password</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
<h2>Reset your QueryLinker password</h2>
<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for {{.Email}}.</p>
<p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:4px;text-decoration:none;">Reset password</a></p>
<p>If the button does not work, copy this link into your browser:</p>
<p>{{.Link}}</p>
<p><strong>This link expires in 15 minutes.</strong></p>
<p>If you did not request a reset, you can ignore this email.</p>
<p>The QueryLinker team</p>
</body>
</html>`))

// GeneratePasswordResetEmail renders the reset email. Values are HTML-escaped;
// the text variant is derived from the HTML.
func GeneratePasswordResetEmail(name, resetLink, recipientEmail string) (htmlBody, textBody string) {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	var buf bytes.Buffer
	// The template is fixed and its data is plain strings, so Execute cannot fail.
	_ = passwordResetTemplate.Execute(&buf, struct {
		Name, Email, Link string
	}{name, recipientEmail, resetLink})
	htmlBody = buf.String()
	return htmlBody, HTMLToText(htmlBody)
}

// HTMLToText strips markup, keeping block structure as line breaks and rendering
// each link as "text (href)".
func HTMLToText(htmlBody string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return utils.CollapseWhitespace(htmlBody)
	}
	doc.Find("head, script, style").Remove()
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		label := utils.CollapseWhitespace(s.Text())
		switch {
		case href == "" || href == label:
			s.ReplaceWithHtml(html.EscapeString(label))
		case label == "":
			s.ReplaceWithHtml(html.EscapeString(href))
		default:
			s.ReplaceWithHtml(html.EscapeString(label + " (" + href + ")"))
		}
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, h1, h2, h3, h4, li, tr").AfterHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = utils.CollapseWhitespace(line)
		if line == "" && (len(lines) == 0 || lines[len(lines)-1] == "") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
