// Package match implements duplicate-company detection: suffix-aware
// name normalization, edit-distance similarity, and the matchers that
// probe the registry for plausible duplicates of a new registration.
package match

import "strings"

// entitySuffixes lists the corporate designators stripped during name
// normalization, checked in this order. Every entry is tested against
// the current tail of the name; a compound like "Pty Ltd Co" therefore
// loses each trailing designator in turn.
var entitySuffixes = []string{
	"pty ltd",
	"ltd",
	"inc",
	"corp",
	"corporation",
	"company",
	"co",
	"llc",
	"limited",
}

// StripSuffix lower-cases and trims a company name, then removes any
// trailing corporate-entity designators. Suffixes only match on a word
// boundary, so "tobacco" keeps its tail while "Acme Co" loses it.
// Idempotent: normalizing an already-normalized name is a no-op.
func StripSuffix(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for {
		stripped := n
		for _, suffix := range entitySuffixes {
			if strings.HasSuffix(stripped, " "+suffix) {
				stripped = strings.TrimSpace(strings.TrimSuffix(stripped, suffix))
			}
		}
		if stripped == n {
			return n
		}
		n = stripped
	}
}
