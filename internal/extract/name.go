package extract

import (
	"strings"
	"unicode"
)

// DefaultName is used when no line of a resume looks like a person's name.
const DefaultName = "Candidate"

// ExtractName returns the first line of resume made of two to four
// title-case words, trimmed. It returns DefaultName when no line qualifies.
func ExtractName(resume string) string {
	for line := range strings.Lines(resume) {
		line = strings.TrimSpace(line)
		words := strings.Fields(line)
		if len(words) < 2 || len(words) > 4 {
			continue
		}
		if allTitle(words) {
			return line
		}
	}
	return DefaultName
}

func allTitle(words []string) bool {
	for _, w := range words {
		if !isTitle(w) {
			return false
		}
	}
	return true
}

// isTitle reports whether every upper-case letter in word follows an uncased
// character and every lower-case letter follows a cased one. At least one
// cased letter is required, so "A." qualifies and "III" or "1999" do not.
func isTitle(word string) bool {
	cased, prevCased := false, false
	for _, r := range word {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}
