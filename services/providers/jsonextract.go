package providers

import "strings"

// ExtractJSONObject returns the first balanced {...} substring of text.
// Vendors without a structured-output mode tend to wrap JSON in prose or
// markdown fences, so braces inside string literals are ignored while matching.
func ExtractJSONObject(text string) (string, bool) {
	offset := 0
	for {
		start := strings.IndexByte(text[offset:], '{')
		if start < 0 {
			return "", false
		}
		start += offset
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		offset = start + 1
	}
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
