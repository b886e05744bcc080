package config

import (
	"errors"
	"strings"
)

// normalizeJSONC blanks out comments and trailing commas. Removed bytes are
// replaced by spaces (newlines are kept) so decoder offsets still point at
// the original line and column.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)

	const (
		code = iota
		str
		strEscape
		lineComment
		blockComment
	)
	mode := code
	lastComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch mode {
		case str:
			switch ch {
			case '\\':
				mode = strEscape
			case '"':
				mode = code
			}
		case strEscape:
			mode = str
		case lineComment:
			if ch == '\n' || ch == '\r' {
				mode = code
				continue
			}
			out[i] = ' '
		case blockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				mode = code
				continue
			}
			if ch != '\n' && ch != '\r' && ch != '\t' {
				out[i] = ' '
			}
		default:
			switch {
			case ch == '"':
				mode = str
				lastComma = -1
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				mode = lineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				mode = blockComment
			case ch == ',':
				lastComma = i
			case ch == '}' || ch == ']':
				if lastComma >= 0 {
					out[lastComma] = ' '
				}
				lastComma = -1
			case isJSONWhitespace(ch):
			default:
				lastComma = -1
			}
		}
	}

	if mode == blockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	return strings.IndexByte(" \n\r\t", ch) >= 0
}
