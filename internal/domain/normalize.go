package domain

import "strings"

// NormalizeText prepares text for loose comparison:
//   - trims leading/trailing whitespace
//   - converts to lowercase
//   - collapses every whitespace run into a single space
//
// Diacritics, hyphens, and apostrophes are preserved.
func NormalizeText(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(fields, " "))
}
