// Package temple provides the read-only temple directory: the record type,
// the [Directory] interface, an in-memory store seeded from YAML, and a
// PostgreSQL-backed store.
package temple

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned by [Directory.Get] when no temple has the id.
var ErrNotFound = errors.New("temple: not found")

// Temple is one directory entry.
type Temple struct {
	ID                     string    `json:"id" yaml:"id"`
	Name                   string    `json:"name" yaml:"name"`
	Location               string    `json:"location" yaml:"location"`
	State                  string    `json:"state" yaml:"state"`
	District               string    `json:"district" yaml:"district"`
	Latitude               float64   `json:"latitude" yaml:"latitude"`
	Longitude              float64   `json:"longitude" yaml:"longitude"`
	Timing                 string    `json:"timing" yaml:"timing"`
	History                string    `json:"history" yaml:"history"`
	Significance           string    `json:"significance" yaml:"significance"`
	Deity                  string    `json:"deity" yaml:"deity"`
	ArchitectureStyle      string    `json:"architecture_style" yaml:"architecture_style"`
	BuiltYear              int       `json:"built_year" yaml:"built_year"`
	ImageURL               string    `json:"image_url" yaml:"image_url"`
	ChantingAudioURL       string    `json:"chanting_audio_url,omitempty" yaml:"chanting_audio_url"`
	AccessibilityFeatures  []string  `json:"accessibility_features" yaml:"accessibility_features"`
	NearbyMedical          string    `json:"nearby_medical" yaml:"nearby_medical"`
	EntryFee               float64   `json:"entry_fee" yaml:"entry_fee"`
	DressCode              string    `json:"dress_code" yaml:"dress_code"`
	SpecialRituals         []string  `json:"special_rituals" yaml:"special_rituals"`
	Festivals              []string  `json:"festivals" yaml:"festivals"`
	ContactNumber          string    `json:"contact_number,omitempty" yaml:"contact_number"`
	Website                string    `json:"website,omitempty" yaml:"website"`
	Rating                 float64   `json:"rating" yaml:"rating"`
	ReviewsCount           int       `json:"reviews_count" yaml:"reviews_count"`
	IsWheelchairAccessible bool      `json:"is_wheelchair_accessible" yaml:"is_wheelchair_accessible"`
	ParkingAvailable       bool      `json:"parking_available" yaml:"parking_available"`
	CreatedAt              time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" yaml:"updated_at"`
}

// Directory is the read-only temple data provider.
// Implementations must be safe for concurrent use.
type Directory interface {
	// List returns every temple ordered by name.
	List(ctx context.Context) ([]Temple, error)

	// ListByState returns the temples of one state ordered by name.
	ListByState(ctx context.Context, state string) ([]Temple, error)

	// Get returns the temple with id, or an error wrapping [ErrNotFound].
	Get(ctx context.Context, id string) (Temple, error)

	// States returns the distinct states in ascending order.
	States(ctx context.Context) ([]string, error)

	// Search ranks temples by similarity of q to their name, location and
	// deity. At most limit results are returned; limit <= 0 means no cap.
	Search(ctx context.Context, q string, limit int) ([]Result, error)
}

func sortByName(ts []Temple) {
	slices.SortStableFunc(ts, func(a, b Temple) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
}

func distinctStates(ts []Temple) []string {
	var states []string
	for _, t := range ts {
		if t.State != "" {
			states = append(states, t.State)
		}
	}
	slices.Sort(states)
	return slices.Compact(states)
}
