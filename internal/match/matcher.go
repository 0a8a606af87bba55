package match

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-steel/registry-cli/internal/abn"
	"github.com/meridian-steel/registry-cli/internal/model"
)

// DefaultMinNameLength is the shortest proposed name the name matcher
// will look up. Shorter names return no candidates without touching
// the store; below this floor substring containment produces mostly
// false positives.
const DefaultMinNameLength = 3

// CandidateSource supplies the existing company records the matchers
// compare against. The store satisfies this.
type CandidateSource interface {
	// CompaniesByABN returns companies whose normalized ABN equals the
	// given value exactly.
	CompaniesByABN(ctx context.Context, normalized string) ([]model.Company, error)

	// AllCompanies returns every registered company, in no particular
	// order.
	AllCompanies(ctx context.Context) ([]model.Company, error)
}

// Matcher detects whether a proposed registration collides with an
// existing company, by exact ABN match and by fuzzy name match.
//
// Both matchers fail open: a data-access error is logged and treated
// as "no match found", so a backend outage never blocks a legitimate
// registration. Human review of pending companies is the downstream
// backstop for duplicates that slip through.
type Matcher struct {
	source  CandidateSource
	minName int
	group   singleflight.Group
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinNameLength overrides the minimum name length gate.
func WithMinNameLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.minName = n
		}
	}
}

// New creates a Matcher over the given candidate source.
func New(source CandidateSource, opts ...Option) *Matcher {
	m := &Matcher{source: source, minName: DefaultMinNameLength}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchName returns the existing companies that plausibly represent
// the same entity as the proposed name, ranked by similarity
// descending. A company is included when any of three structural tests
// holds against its lower-cased name:
//
//   - case-insensitive equality
//   - substring containment in either direction
//   - equality after stripping corporate suffixes from both sides
//
// The similarity score is attached for ordering only; it is not a
// threshold. A low-scoring containment hit ("ABC" against
// "ABC Holdings") still surfaces — the human submitter makes the final
// call, not the score.
//
// Concurrent lookups for the same name share a single store scan.
func (m *Matcher) MatchName(ctx context.Context, proposed string) []model.MatchCandidate {
	trimmed := strings.TrimSpace(proposed)
	if utf8.RuneCountInString(trimmed) < m.minName {
		return nil
	}

	lower := strings.ToLower(trimmed)

	v, _, _ := m.group.Do("name:"+lower, func() (any, error) {
		return m.matchName(ctx, lower), nil
	})
	candidates, _ := v.([]model.MatchCandidate)
	return candidates
}

func (m *Matcher) matchName(ctx context.Context, lower string) []model.MatchCandidate {
	companies, err := m.source.AllCompanies(ctx)
	if err != nil {
		zap.L().Warn("match: company scan failed, treating as no matches",
			zap.Error(err),
		)
		return nil
	}

	normalized := StripSuffix(lower)

	var candidates []model.MatchCandidate
	for _, c := range companies {
		existing := strings.ToLower(strings.TrimSpace(c.Name))
		if existing == "" {
			continue
		}

		include := existing == lower ||
			strings.Contains(existing, lower) ||
			strings.Contains(lower, existing) ||
			StripSuffix(existing) == normalized

		if !include {
			continue
		}

		candidates = append(candidates, model.MatchCandidate{
			Company: c,
			Score:   Similarity(lower, existing),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	zap.L().Debug("match: name lookup complete",
		zap.String("name", lower),
		zap.Int("scanned", len(companies)),
		zap.Int("candidates", len(candidates)),
	)

	return candidates
}

// MatchABN returns the existing company holding the exact normalized
// ABN, or nil. Input that is not 11 digits after whitespace removal
// returns nil without querying the store. If the store unexpectedly
// returns more than one row the first wins, by arrival order.
func (m *Matcher) MatchABN(ctx context.Context, raw string) *model.Company {
	normalized := abn.Normalize(raw)
	if !elevenDigits(normalized) {
		return nil
	}

	v, _, _ := m.group.Do("abn:"+normalized, func() (any, error) {
		return m.matchABN(ctx, normalized), nil
	})
	company, _ := v.(*model.Company)
	return company
}

func (m *Matcher) matchABN(ctx context.Context, normalized string) *model.Company {
	companies, err := m.source.CompaniesByABN(ctx, normalized)
	if err != nil {
		zap.L().Warn("match: abn lookup failed, treating as no match",
			zap.String("abn", normalized),
			zap.Error(err),
		)
		return nil
	}
	if len(companies) == 0 {
		return nil
	}
	if len(companies) > 1 {
		// The ABN column carries a unique index, so this only happens
		// on registers seeded before the index existed.
		zap.L().Warn("match: multiple companies share an abn",
			zap.String("abn", normalized),
			zap.Int("count", len(companies)),
		)
	}
	return &companies[0]
}

func elevenDigits(s string) bool {
	if len(s) != 11 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
