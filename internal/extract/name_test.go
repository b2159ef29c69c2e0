package extract

import "testing"

func TestExtractName(t *testing.T) {
	tests := []struct {
		name   string
		resume string
		want   string
	}{
		{
			name:   "middle initial",
			resume: "John A. Smith\nSoftware Engineer\njohn@example.com",
			want:   "John A. Smith",
		},
		{
			name:   "leading blank lines and padding",
			resume: "\n\n   Maria Garcia Lopez   \nData Analyst",
			want:   "Maria Garcia Lopez",
		},
		{
			name:   "first qualifying line wins",
			resume: "RESUME\nsummary of work\nJane Doe\nSenior Product Manager",
			want:   "Jane Doe",
		},
		{
			name:   "single word is too short",
			resume: "Jane\njane@example.com",
			want:   DefaultName,
		},
		{
			name:   "five words is too long",
			resume: "Jane Mary Ann Louise Doe",
			want:   DefaultName,
		},
		{
			name:   "all caps is not title case",
			resume: "JANE DOE\nengineer at acme",
			want:   DefaultName,
		},
		{
			name:   "inner capital is not title case",
			resume: "Ronald McDonald\n",
			want:   DefaultName,
		},
		{
			name:   "apostrophe and hyphen",
			resume: "Seán O'Brien-Smith\n",
			want:   "Seán O'Brien-Smith",
		},
		{
			name:   "windows line endings",
			resume: "Experience 2020\r\nAda Lovelace\r\n",
			want:   "Ada Lovelace",
		},
		{
			name:   "empty resume",
			resume: "",
			want:   DefaultName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractName(tt.resume); got != tt.want {
				t.Errorf("ExtractName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTitle(t *testing.T) {
	tests := map[string]bool{
		"Smith":    true,
		"A.":       true,
		"III":      false,
		"1999":     false,
		"smith":    false,
		"SMith":    false,
		"Jean-Luc": true,
		"":         false,
	}
	for word, want := range tests {
		if got := isTitle(word); got != want {
			t.Errorf("isTitle(%q) = %v, want %v", word, got, want)
		}
	}
}

func BenchmarkExtractName(b *testing.B) {
	resume := "Objective: build things\nskills: go, sql\nJohn A. Smith\n"
	for b.Loop() {
		ExtractName(resume)
	}
}
