package temple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedFile is the document layout read by [DecodeSeed].
type seedFile struct {
	Temples []Temple `yaml:"temples"`
}

// LoadSeed reads a YAML seed file with a top-level "temples" list.
func LoadSeed(path string) ([]Temple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("temple: open seed %q: %w", path, err)
	}
	defer f.Close()

	ts, err := DecodeSeed(f)
	if err != nil {
		return nil, fmt.Errorf("temple: seed %q: %w", path, err)
	}
	return ts, nil
}

// DecodeSeed decodes a seed document from r. Unknown fields are rejected.
func DecodeSeed(r io.Reader) ([]Temple, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return doc.Temples, nil
}

// MemoryStore is a [Directory] over a fixed set of temples.
type MemoryStore struct {
	temples []Temple // sorted by name
	byID    map[string]int
	matcher *Matcher
}

var _ Directory = (*MemoryStore)(nil)

// NewMemoryStore builds a store from temples. Every temple needs a unique,
// non-empty id and a name.
func NewMemoryStore(temples []Temple, opts ...MatcherOption) (*MemoryStore, error) {
	ts := slices.Clone(temples)
	var errs []error
	seen := make(map[string]bool, len(ts))
	for i, t := range ts {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("temples[%d].id is required", i))
		case seen[t.ID]:
			errs = append(errs, fmt.Errorf("temples[%d].id %q is a duplicate", i, t.ID))
		}
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("temples[%d].name is required", i))
		}
		seen[t.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("temple: %w", err)
	}

	sortByName(ts)
	byID := make(map[string]int, len(ts))
	for i, t := range ts {
		byID[t.ID] = i
	}
	return &MemoryStore{temples: ts, byID: byID, matcher: NewMatcher(opts...)}, nil
}

// List implements [Directory].
func (s *MemoryStore) List(_ context.Context) ([]Temple, error) {
	return slices.Clone(s.temples), nil
}

// ListByState implements [Directory]. States compare case-insensitively.
func (s *MemoryStore) ListByState(_ context.Context, state string) ([]Temple, error) {
	var out []Temple
	for _, t := range s.temples {
		if strings.EqualFold(t.State, state) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Get implements [Directory].
func (s *MemoryStore) Get(_ context.Context, id string) (Temple, error) {
	i, ok := s.byID[id]
	if !ok {
		return Temple{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s.temples[i], nil
}

// States implements [Directory].
func (s *MemoryStore) States(_ context.Context) ([]string, error) {
	return distinctStates(s.temples), nil
}

// Search implements [Directory].
func (s *MemoryStore) Search(_ context.Context, q string, limit int) ([]Result, error) {
	return s.matcher.Rank(s.temples, q, limit), nil
}
