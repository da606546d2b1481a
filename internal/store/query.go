package store

import (
	"slices"
	"sort"
	"strings"

	"github.com/hpungsan/stream/internal/fragment"
)

// Filter selects fragments for a view. Zero fields match everything.
type Filter struct {
	// Search matches title, content or any tag, case-insensitively.
	Search string

	// Tags keeps fragments carrying at least one of these tags.
	Tags []string

	// StackID keeps members of one stack, ordered by position.
	StackID string

	// IncludeEphemeral keeps rack stubs, which the grid hides.
	IncludeEphemeral bool
}

// Matches reports whether f passes every criterion except StackID ordering.
func (flt Filter) Matches(f fragment.Fragment) bool {
	if f.Flags.Ephemeral && !flt.IncludeEphemeral {
		return false
	}
	if flt.StackID != "" && f.StackID() != flt.StackID {
		return false
	}
	if len(flt.Tags) > 0 && !slices.ContainsFunc(flt.Tags, f.HasTag) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(flt.Search)); q != "" {
		return matchesSearch(f, q)
	}
	return true
}

func matchesSearch(f fragment.Fragment, q string) bool {
	if strings.Contains(strings.ToLower(f.Title), q) || strings.Contains(strings.ToLower(f.Content), q) {
		return true
	}
	for _, t := range f.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// Query returns copies of the fragments passing flt, newest first, or by
// stack position when flt.StackID is set.
func (s *Store) Query(flt Filter) []fragment.Fragment {
	s.mu.Lock()
	out := make([]fragment.Fragment, 0, len(s.frags))
	for _, f := range s.frags {
		if flt.Matches(f) {
			out = append(out, f.Clone())
		}
	}
	s.mu.Unlock()

	if flt.StackID != "" {
		SortByPosition(out)
	}
	return out
}

// VisibleIDs returns the ids Query would return, in the same order.
func (s *Store) VisibleIDs(flt Filter) []string {
	frags := s.Query(flt)
	ids := make([]string, len(frags))
	for i, f := range frags {
		ids[i] = f.ID
	}
	return ids
}

// AllTags returns every tag on a non-stub fragment, sorted.
func (s *Store) AllTags() []string {
	seen := make(map[string]bool)
	s.mu.Lock()
	for _, f := range s.frags {
		if f.Flags.Ephemeral {
			continue
		}
		for _, t := range f.Tags {
			seen[t] = true
		}
	}
	s.mu.Unlock()

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// SortByPosition orders frags by stack position ascending. Fragments with
// no position go last; ties keep their existing order.
func SortByPosition(frags []fragment.Fragment) {
	sort.SliceStable(frags, func(i, j int) bool {
		pi, iok := frags[i].Position()
		pj, jok := frags[j].Position()
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		default:
			return false
		}
	})
}
