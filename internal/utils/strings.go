package utils

import (
	"regexp"
	"strings"

	"github.com/PolarWolf314/kowhai/internal/ui"
)

// nonAlphanumeric matches runs of characters that are not letters or digits.
var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NormalizeSecretName converts a caller-supplied identifier into its
// canonical store form: upper-cased, with runs of non-alphanumeric
// characters collapsed to a single underscore and stripped from the ends.
//
//	"db password"    -> "DB_PASSWORD"
//	"api--key.prod"  -> "API_KEY_PROD"
func NormalizeSecretName(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	return strings.ToUpper(s)
}

// IsValidSecretName reports whether a normalized name is acceptable to the
// store. Names must be non-empty, start with a letter, and avoid the
// platform-reserved GITHUB_ prefix.
func IsValidSecretName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "GITHUB_") {
		return false
	}
	c := name[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// FormatPaths formats a slice of paths into a readable string.
func FormatPaths(paths []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, path := range paths {
		b.WriteString("    - ")
		b.WriteString(ui.Path.Sprint(path))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatNames formats a slice of secret names into a readable string.
func FormatNames(names []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, name := range names {
		b.WriteString("    - ")
		b.WriteString(ui.Highlight.Sprint(name))
		b.WriteString("\n")
	}
	return b.String()
}
