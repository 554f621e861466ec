package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input, folds inner whitespace runs to one space and
// caps the result at maxLen bytes without splitting a multi-byte character,
// so a "Forest  Green" colour or a Bangla size label stays valid UTF-8.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return strings.TrimSpace(trimmed[:cut])
}
