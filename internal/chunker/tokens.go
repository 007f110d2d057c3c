package chunker

import (
	"regexp"
	"strings"
)

// tokenPattern matches word runs, digit runs and single punctuation marks.
var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+|[^\s\p{L}\p{N}]`)

// TokenCount is the length function shared by every chunking profile.
func TokenCount(s string) int {
	return len(tokenPattern.FindAllStringIndex(s, -1))
}

// NormalizeWhitespace collapses line breaks and whitespace runs to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
