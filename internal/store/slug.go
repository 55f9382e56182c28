package store

import (
	"regexp"
	"strings"
)

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Slugify turns a listing title into its URL slug.
// Characters outside [a-z0-9], whitespace and '-' are dropped, so accented
// letters disappear rather than being transliterated.
func Slugify(title string) string {
	s := strings.TrimSpace(strings.ToLower(title))
	s = slugStrip.ReplaceAllString(s, "")
	return slugWhitespace.ReplaceAllString(s, "-")
}
