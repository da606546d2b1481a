package rack

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

// Separator joins fragment contents in compiled output.
const Separator = "\n\n"

// Join concatenates contents with a blank line between each.
func Join(contents []string) string {
	return strings.Join(contents, Separator)
}

// RenderHTML converts compiled markdown text to HTML.
func RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
