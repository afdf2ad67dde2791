package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle NFC-normalizes a display title and collapses interior
// whitespace. Composed and decomposed spellings of the same title would
// otherwise produce distinct dataset filenames.
func NormalizeTitle(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), " ")
}

// TitleCase capitalizes each word using Unicode casing rules.
func TitleCase(value string) string {
	return cases.Title(language.Und).String(value)
}
