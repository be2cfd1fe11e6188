package label

import (
	"errors"
	"testing"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"alice", "alice"},
		{"  Alice Smith  ", "Alice_Smith"},
		{"Alice   Smith", "Alice_Smith"},
		{"Alice\tSmith", "Alice_Smith"},
		{"bob-jones", "bob-jones"},
		{"__bob__", "bob"},
		{"a__b", "a_b"},
		{"a _ b", "a_b"},
		{"Jiří Novák", "Jiri_Novak"},
		{"o'brien!", "obrien"},
		{"../etc/passwd", "etcpasswd"},
		{"-dash-", "dash"},
		{"_-x-_", "x"},
		{"Alice\nSmith", "Alice_Smith"},
		{"Alice \t\r\n Smith", "Alice_Smith"},
		{"Anne-Marie Dupont", "Anne-Marie_Dupont"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "___", "!!!", "\t\n", "- _ -"} {
		if _, err := Normalize(input); !errors.Is(err, ErrEmpty) {
			t.Errorf("Normalize(%q) error = %v, want ErrEmpty", input, err)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("Alice Smith", "Alice   Smith") {
		t.Error("expected whitespace variants to be the same label")
	}
	if Equal("Alice", "alice") {
		t.Error("labels are case-sensitive")
	}
	if Equal("", "") {
		t.Error("empty names are never equal labels")
	}
}
