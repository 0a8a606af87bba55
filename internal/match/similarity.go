package match

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores how alike two strings are, in [0, 1]. The score is
// the Levenshtein edit distance normalized by the length of the longer
// string: 1.0 for identical strings, 0.0 for entirely dissimilar ones.
// Two empty strings score 1.0. Callers are expected to pass
// already-lower-cased input; no case folding happens here.
func Similarity(a, b string) float64 {
	longer := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longer {
		longer = n
	}
	if longer == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return float64(longer-dist) / float64(longer)
}
