package chant

import (
	"slices"
	"strings"
)

// deityGroup is one entry of the playlist priority table. A group matches a
// temple when any keyword is a substring of the lowercased temple deity; it
// then selects every catalog track accepted by pick.
type deityGroup struct {
	name     string
	keywords []string
	pick     func(Track) bool
}

func deityContains(parts ...string) func(Track) bool {
	return func(t Track) bool {
		for _, p := range parts {
			if strings.Contains(t.Deity, p) {
				return true
			}
		}
		return false
	}
}

// deityGroups is tested in order; the first group whose keyword matches
// wins even when a later group would also match.
var deityGroups = []deityGroup{
	{
		name:     "shiva",
		keywords: []string{"shiva"},
		pick: func(t Track) bool {
			return strings.Contains(t.Deity, "Shiva") || t.ID == "om-namah-shivaya"
		},
	},
	{name: "vishnu", keywords: []string{"krishna", "vishnu"}, pick: deityContains("Krishna", "Vishnu")},
	{name: "ganesha", keywords: []string{"ganesha", "ganapati"}, pick: deityContains("Ganesha")},
	{name: "surya", keywords: []string{"surya", "sun"}, pick: deityContains("Surya")},
}

// SelectPlaylist narrows the catalog to the tracks relevant to a temple
// deity. Matching is a case-insensitive substring test against the fixed
// group table. When no group matches, or the matching group selects
// nothing, the result is a one-element list holding the first catalog
// track. An empty catalog yields nil.
//
// The returned slice never aliases all.
func SelectPlaylist(all []Track, deity string) []Track {
	if len(all) == 0 {
		return nil
	}
	lower := strings.ToLower(deity)
	for _, g := range deityGroups {
		if !slices.ContainsFunc(g.keywords, func(k string) bool { return strings.Contains(lower, k) }) {
			continue
		}
		var out []Track
		for _, t := range all {
			if g.pick(t) {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
		break
	}
	return []Track{all[0]}
}

// MatchGroup returns the name of the priority group a deity falls into, or
// "" when none matches. Useful for logging and metrics labels.
func MatchGroup(deity string) string {
	lower := strings.ToLower(deity)
	for _, g := range deityGroups {
		for _, k := range g.keywords {
			if strings.Contains(lower, k) {
				return g.name
			}
		}
	}
	return ""
}
