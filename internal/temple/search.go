package temple

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Field names reported in [Result.Field].
const (
	FieldName     = "name"
	FieldLocation = "location"
	FieldDeity    = "deity"
)

// Result is one ranked search hit.
type Result struct {
	Temple Temple  `json:"temple"`
	Score  float64 `json:"score"`
	Field  string  `json:"field"`
}

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score accepted when
// the query and the field share a Double Metaphone code. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score accepted without a
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher ranks temples against a free-text query. A case-insensitive
// substring hit scores 1. Otherwise fields are compared with Jaro-Winkler,
// using the lower threshold when the words sound alike (Double Metaphone),
// so that "Kedarnat" or "Meenakshy" still find their temple.
//
// A Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] configured with opts.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Rank scores every temple against q and returns the accepted hits, best
// first, ties broken by name. An empty query matches nothing.
func (m *Matcher) Rank(temples []Temple, q string, limit int) []Result {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)
	qCodes := codesForTokens(qTokens)

	var results []Result
	for _, t := range temples {
		best := Result{Temple: t}
		for _, f := range []struct{ name, value string }{
			{FieldName, t.Name},
			{FieldLocation, t.Location},
			{FieldDeity, t.Deity},
		} {
			if s := m.score(q, qTokens, qCodes, f.value); s > best.Score {
				best.Score = s
				best.Field = f.name
			}
		}
		if best.Score > 0 {
			results = append(results, best)
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Temple.Name, b.Temple.Name))
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// score returns the accepted similarity of q to value, or 0.
func (m *Matcher) score(q string, qTokens []string, qCodes map[string]struct{}, value string) float64 {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	if strings.Contains(v, q) {
		return 1
	}
	vTokens := strings.Fields(v)
	jw := bestJWScore(qTokens, vTokens, q, v)
	threshold := m.fuzzyThreshold
	if codesOverlap(qCodes, codesForTokens(vTokens)) {
		threshold = m.phoneticThreshold
	}
	if jw < threshold {
		return 0
	}
	return jw
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings, and every token pair.
func bestJWScore(qTokens, vTokens []string, qFull, vFull string) float64 {
	score := matchr.JaroWinkler(qFull, vFull, false)

	if len(qTokens) > 1 || len(vTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(vTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range qTokens {
		for _, vt := range vTokens {
			if s := matchr.JaroWinkler(qt, vt, false); s > score {
				score = s
			}
		}
	}
	return score
}
