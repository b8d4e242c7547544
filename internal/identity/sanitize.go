package identity

import (
	"regexp"
	"strings"
)

// DefaultRelType is used when a relationship type sanitizes to nothing
const DefaultRelType = "ASSOCIATED_WITH"

var (
	disallowedRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// SanitizeRelType makes raw usable as a relationship type identifier:
// upper case, only letters, digits and single underscores.
func SanitizeRelType(raw string) string {
	cleaned := disallowedRe.ReplaceAllString(strings.ToUpper(raw), "_")
	cleaned = underscoreRe.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return DefaultRelType
	}
	return cleaned
}
