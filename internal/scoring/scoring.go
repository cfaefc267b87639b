// Package scoring compares generated answers to ground truth.
package scoring

import (
	"strings"
	"unicode"
)

// Metric scores a generated answer against the ground truth for a question category.
// Implementations are pure.
type Metric interface {
	Score(generated, truth, qcate string) float64
}

// Question categories with dedicated scoring rules.
const (
	CategoryYesNo  = "YesNo"
	CategoryColor  = "color"
	CategoryShape  = "shape"
	CategoryNumber = "number"
)

var articles = map[string]bool{"a": true, "an": true, "the": true}

var stopwords = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true, "with": true,
	"and": true, "or": true, "by": true, "from": true, "as": true, "it": true, "its": true,
	"this": true, "that": true, "there": true, "their": true, "they": true, "has": true,
	"have": true, "had": true, "do": true, "does": true, "did": true, "both": true,
}

var colorWords = wordSet(
	"white", "black", "red", "blue", "green", "yellow", "orange", "purple", "pink",
	"brown", "gray", "grey", "tan", "gold", "golden", "silver", "beige", "maroon",
	"turquoise", "violet", "cream", "teal", "navy", "bronze", "copper",
)

var shapeWords = wordSet(
	"triangle", "triangular", "square", "circle", "circular", "round", "rectangle",
	"rectangular", "oval", "octagon", "octagonal", "hexagon", "hexagonal", "cylinder",
	"cylindrical", "sphere", "spherical", "cube", "cone", "conical", "pyramid", "star",
	"heart", "diamond", "arch", "dome", "spiral", "cross", "curved", "flat", "pointed",
)

var numberWords = map[string]string{
	"zero": "0", "none": "0", "one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10", "eleven": "11",
	"twelve": "12", "thirteen": "13", "fourteen": "14", "fifteen": "15", "sixteen": "16",
	"seventeen": "17", "eighteen": "18", "nineteen": "19", "twenty": "20",
	"single": "1", "once": "1", "twice": "2", "pair": "2", "couple": "2",
}

func wordSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

// Normalize lower-cases s, replaces punctuation with spaces and drops articles.
func Normalize(s string) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if !articles[f] {
			out = append(out, f)
		}
	}
	return out
}
