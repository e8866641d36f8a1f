package normalize

import (
	"reflect"
	"testing"
)

func TestStringFix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"en dash", "12–18", "12-18"},
		{"em dash", "12—18", "12-18"},
		{"minus sign", "a−b", "a-b"},
		{"isbn hyphens stripped", "isbn:978-0-12-345678-9", "isbn:9780123456789"},
		{"isbn with unicode dashes", "isbn:978‐0–12", "isbn:978012"},
		{"doi hyphens kept", "doi:10.1000/abc-def", "doi:10.1000/abc-def"},
		{"plain", "nothing to fix", "nothing to fix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringFix(tt.input); got != tt.want {
				t.Errorf("StringFix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lower words", "machine learning in biology", "Machine Learning In Biology"},
		{"acronym kept", "the DNA of   cells", "The DNA Of Cells"},
		{"mixed case kept", "an iPhone study", "An iPhone Study"},
		{"all caps lowered", "NATURE GENETICS", "Nature Genetics"},
		{"nul removed", "bio\x00logy", "Biology"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTitle(tt.input); got != tt.want {
				t.Errorf("CleanTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"family given", "smith,  john", "Smith, John"},
		{"spaces around comma", "doe , jane   mary", "Doe, Jane Mary"},
		{"no given", "smith,", "Smith, "},
		{"no family", ", john", ""},
		{"organisation", "american   chemical society", "American Chemical Society"},
		{"last comma splits", "de la cruz, jr, maria", "De La Cruz, Jr, Maria"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanName(tt.input); got != tt.want {
				t.Errorf("CleanName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameCheck(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		incoming string
		want     string
	}{
		{"upgrade missing given", "Smith, ", "Smith, John", "Smith, John"},
		{"keep existing given", "Smith, Jane", "Smith, John", "Smith, Jane"},
		{"incoming lacks given", "Smith, ", "Smith, ", "Smith, "},
		{"organisation untouched", "Nature Publishing", "Nature, Group", "Nature Publishing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameCheck(tt.stored, tt.incoming); got != tt.want {
				t.Errorf("NameCheck(%q, %q) = %q, want %q", tt.stored, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Journal Article", "journal article"},
		{"  journal   ISSUE ", "journal issue"},
		{"edited book", "book"},
		{"Monograph", "book"},
		{"report series", "series"},
		{"standard series", "series"},
		{"posted content", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeType(tt.input); got != tt.want {
				t.Errorf("NormalizeType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitBracketed(t *testing.T) {
	name, ids, ok := SplitBracketed("Nature [ issn:0028-0836  issn:1476-4687 ]")
	if !ok {
		t.Fatal("SplitBracketed() ok = false, want true")
	}
	if name != "Nature" {
		t.Errorf("name = %q, want %q", name, "Nature")
	}
	if ids != "issn:0028-0836  issn:1476-4687" {
		t.Errorf("ids = %q", ids)
	}

	name, ids, ok = SplitBracketed("  Plain Venue ")
	if ok || name != "Plain Venue" || ids != "" {
		t.Errorf("SplitBracketed(plain) = %q, %q, %v", name, ids, ok)
	}
}

func TestSplitContributors(t *testing.T) {
	got := SplitContributors("Smith, John [orcid:0000-0002-1825-0097]; Doe, Jane ;Roe, R [viaf:1; x]")
	want := []string{
		"Smith, John [orcid:0000-0002-1825-0097]",
		"Doe, Jane",
		"Roe, R [viaf:1; x]",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitContributors() = %q, want %q", got, want)
	}

	if got := SplitContributors(" ; "); len(got) != 0 {
		t.Errorf("SplitContributors(empty) = %q, want none", got)
	}
}
