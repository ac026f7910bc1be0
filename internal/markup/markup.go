// Package markup renders the small markdown subset used in bot texts (**bold**,
// `code` and [label](url)) to Telegram HTML. Values typed by users are passed through
// Escape before they are interpolated into a text.
package markup

import (
	"html"
	"strings"
	"unicode/utf8"
)

var escaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "`", "\\`", "[", `\[`)

// Escape makes s render literally.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Render converts text to Telegram HTML. Unterminated markers are kept as text.
func Render(text string) string {
	var b strings.Builder
	bold := false
	for i := 0; i < len(text); {
		switch {
		case text[i] == '\\' && i+1 < len(text):
			_, size := utf8.DecodeRuneInString(text[i+1:])
			b.WriteString(html.EscapeString(text[i+1 : i+1+size]))
			i += 1 + size
		case text[i] == '`':
			end := closing(text, i+1, "`")
			if end < 0 {
				b.WriteString("`")
				i++
				continue
			}
			b.WriteString("<code>" + literal(text[i+1:end]) + "</code>")
			i = end + 1
		case strings.HasPrefix(text[i:], "**"):
			switch {
			case bold:
				b.WriteString("</b>")
				bold = false
			case closing(text, i+2, "**") >= 0:
				b.WriteString("<b>")
				bold = true
			default:
				b.WriteString("**")
			}
			i += 2
		case text[i] == '[':
			label, url, next, ok := link(text, i)
			if !ok {
				b.WriteString("[")
				i++
				continue
			}
			b.WriteString(`<a href="` + html.EscapeString(url) + `">` + literal(label) + "</a>")
			i = next
		default:
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(html.EscapeString(text[i : i+size]))
			i += size
		}
	}
	if bold {
		b.WriteString("</b>")
	}
	return b.String()
}

// closing returns the index of the next unescaped marker at or after from, or -1.
func closing(text string, from int, marker string) int {
	for i := from; i < len(text); i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(text[i:], marker) {
			return i
		}
	}
	return -1
}

func link(text string, start int) (label, url string, next int, ok bool) {
	end := closing(text, start+1, "]")
	if end < 0 || end+1 >= len(text) || text[end+1] != '(' {
		return "", "", 0, false
	}
	paren := strings.IndexByte(text[end+2:], ')')
	if paren < 0 {
		return "", "", 0, false
	}
	url = text[end+2 : end+2+paren]
	if url == "" || strings.ContainsAny(url, " \t\n") {
		return "", "", 0, false
	}
	return text[start+1 : end], url, end + 3 + paren, true
}

// literal unescapes s and makes it safe for HTML.
func literal(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return html.EscapeString(b.String())
}
