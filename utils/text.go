package utils

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML returns the visible text of an HTML fragment with tags removed,
// entities decoded and runs of whitespace collapsed to single spaces
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read
			return strings.Join(strings.Fields(b.String()), " ")

		case html.StartTagToken:
			name, _ := z.TagName()
			if isHiddenElement(name) {
				skip++
			}
			b.WriteByte(' ')

		case html.EndTagToken:
			name, _ := z.TagName()
			if isHiddenElement(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')

		case html.SelfClosingTagToken:
			b.WriteByte(' ')

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenElement(name []byte) bool {
	switch string(name) {
	case "script", "style", "noscript":
		return true
	}
	return false
}
