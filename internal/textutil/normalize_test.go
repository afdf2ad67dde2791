package textutil

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trims and collapses whitespace", "  front   left  ", "front left"},
		{"empty input", "   ", ""},
		{"composes decomposed accents", "cafe\u0301", "caf\u00e9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeTitle(tc.input); got != tc.want {
				t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("needs review"); got != "Needs Review" {
		t.Fatalf("TitleCase = %q", got)
	}
	if got := TitleCase("EDITING"); got != "Editing" {
		t.Fatalf("TitleCase should lowercase trailing letters, got %q", got)
	}
}
