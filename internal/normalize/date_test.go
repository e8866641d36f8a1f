package normalize

import "testing"

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"full date", "2019-03-15", "2019-03-15"},
		{"year month", "2019-03", "2019-03"},
		{"year only", "2019", "2019"},
		{"slashes", "2019/03/15", "2019-03-15"},
		{"long month", "March 15, 2019", "2019-03-15"},
		{"month year", "March 2019", "2019-03"},
		{"padded", "  2020-12-01 ", "2020-12-01"},
		{"en dash separators", "2019–03", "2019-03"},
		{"invalid calendar date", "2019-02-29", ""},
		{"leap day", "2020-02-29", "2020-02-29"},
		{"month out of range", "2019-13", ""},
		{"garbage", "sometime soon", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
