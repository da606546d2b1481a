package fragment

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleRunes is the derived-title length before truncation.
	MaxTitleRunes = 40

	// DefaultTitle is used when content has no usable first line.
	DefaultTitle = "Stream Prompt"

	// StubTitle and StubTag label rack stubs.
	StubTitle = "Quick Prompt"
	StubTag   = "Temp"
)

// DeriveTitle returns the first line of the trimmed content, truncated to
// MaxTitleRunes runes plus "..." when longer.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultTitle
	}
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(line) > MaxTitleRunes {
		return string([]rune(line)[:MaxTitleRunes]) + "..."
	}
	return line
}

// NormalizeTags trims each tag, drops blanks and removes duplicates while
// keeping first-seen order. Returns an empty, non-nil slice for no tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count using a word-based heuristic
// (1.3 tokens per word).
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}
