package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true, // trailing
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.Len(t, normalized, len(input))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
	require.Equal(t, []any{"one", "two"}, decoded["items"])
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text, ]", "q": "esc\"aped // still string",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */ text, ]")
	require.Contains(t, normalized, `esc\"aped // still string`)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
}

func TestNormalizeJSONCKeepsSeparatingCommas(t *testing.T) {
	normalized, err := normalizeJSONC(`{"a":[1,2,{"b":3},],"c":"d"}`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
	require.Len(t, decoded["a"], 3)
	require.Equal(t, "d", decoded["c"])
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.ErrorContains(t, err, "unterminated block comment")
}

func TestLineCol(t *testing.T) {
	content := "line1\nline2\nline3"

	line, col := lineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = lineCol(content, 7)
	require.Equal(t, 2, line)
	require.Equal(t, 1, col)

	line, col = lineCol(content, 9)
	require.Equal(t, 2, line)
	require.Equal(t, 3, col)

	line, _ = lineCol(content, 999)
	require.Equal(t, 3, line)
}
