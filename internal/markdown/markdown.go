// Package markdown renders generated note and chat markdown to HTML.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Render converts GitHub-flavoured markdown to HTML. Raw HTML in the input
// is omitted from the output.
func Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: render: %w", err)
	}
	return buf.String(), nil
}

// MustRender is Render for callers that display whatever could be produced;
// on failure it returns the source HTML-escaped inside a paragraph.
func MustRender(src string) string {
	out, err := Render(src)
	if err != nil {
		var esc bytes.Buffer
		esc.WriteString("<p>")
		htmlEscape(&esc, src)
		esc.WriteString("</p>")
		return esc.String()
	}
	return out
}

func htmlEscape(buf *bytes.Buffer, s string) {
	for _, r := range s {
		switch r {
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
}
