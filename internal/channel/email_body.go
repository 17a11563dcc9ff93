package channel

import (
	"html"
	"strings"

	"github.com/ignite/notification-agent/internal/domain"
)

func emailHTML(c domain.Rendered, pixelURL string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(c.Body, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if c.ActionURL != "" {
		b.WriteString(`<p><a href="`)
		b.WriteString(html.EscapeString(c.ActionURL))
		b.WriteString(`">Open</a></p>`)
	}
	if pixelURL != "" {
		b.WriteString(`<img src="`)
		b.WriteString(html.EscapeString(pixelURL))
		b.WriteString(`" width="1" height="1" alt="" style="display:none">`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func emailText(c domain.Rendered) string {
	if c.ActionURL == "" {
		return c.Body
	}
	return c.Body + "\n\n" + c.ActionURL
}

// tagSafe keeps the characters email providers accept in tag values.
func tagSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}
