// Package label turns free-form identity names into filesystem-safe class labels.
package label

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmpty is returned when a raw name normalizes to nothing.
var ErrEmpty = errors.New("label is empty after normalization")

var (
	disallowed  = regexp.MustCompile(`[^a-zA-Z0-9 _-]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	underscores = regexp.MustCompile(`_+`)
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize converts a raw name into a label: diacritics folded, whitespace
// runs (tabs and newlines included) become a single underscore, anything
// outside [A-Za-z0-9_-] dropped and leading/trailing separators stripped.
func Normalize(raw string) (string, error) {
	cleaned := strings.TrimSpace(RemoveDiacritics(raw))
	// Whitespace first: the disallowed class would otherwise eat tabs.
	cleaned = whitespace.ReplaceAllString(cleaned, "_")
	cleaned = disallowed.ReplaceAllString(cleaned, "")
	cleaned = underscores.ReplaceAllString(cleaned, "_")
	// Hyphens inside a name survive; at the edges they are separators.
	cleaned = strings.Trim(cleaned, "_-")
	if cleaned == "" {
		return "", ErrEmpty
	}
	return cleaned, nil
}

// Equal reports whether two raw names normalize to the same label.
func Equal(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	return errA == nil && errB == nil && na == nb
}
