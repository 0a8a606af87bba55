// Package abn validates Australian Business Numbers.
package abn

import (
	"strings"
	"unicode"
)

// weights are the positional checksum weights defined by the ABR.
var weights = [11]int{10, 1, 3, 5, 7, 9, 11, 13, 15, 17, 19}

// Normalize strips all whitespace from an ABN, e.g. "51 824 753 556"
// becomes "51824753556". No other characters are altered.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Valid reports whether s is a structurally valid ABN. Whitespace is
// ignored. The normalized value must be exactly 11 ASCII digits whose
// weighted sum (first digit reduced by one) is divisible by 89.
// Malformed input returns false, never an error.
func Valid(s string) bool {
	n := Normalize(s)
	if len(n) != 11 {
		return false
	}

	sum := 0
	for i := 0; i < 11; i++ {
		c := n[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i == 0 {
			d--
		}
		sum += d * weights[i]
	}

	return sum%89 == 0
}

// Format renders a normalized ABN in the conventional "NN NNN NNN NNN"
// display grouping. Input that is not 11 characters long is returned
// unchanged.
func Format(s string) string {
	n := Normalize(s)
	if len(n) != 11 {
		return s
	}
	return n[0:2] + " " + n[2:5] + " " + n[5:8] + " " + n[8:11]
}
