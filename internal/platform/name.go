package platform

import (
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeName reduces an arbitrary string to a form that is safe inside
// filenames and object storage keys. Every run of disallowed characters
// collapses to a single dash, and leading/trailing dashes are trimmed.
func SanitizeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
