// Package chant implements the devotional chant player: the track catalog,
// the deity playlist filter, deterministic tone synthesis, and the
// [Sequencer] that drives playback position and track selection.
//
// The package knows nothing about HTTP or storage. Audio is produced through
// a [Backend], which turns a [Track] into an audible [Voice]. The default
// backend ([Engine]) renders synthesis recipes into a process-scoped
// [audio.Context] and streams URL sources over HTTP.
package chant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source describes where a track's audio comes from. Exactly one of URL or
// Recipe is meaningful: a non-empty URL wins over the recipe.
type Source struct {
	// URL points at a 16-bit PCM WAV file served over HTTP(S).
	URL string `yaml:"url" json:"url,omitempty"`

	// Recipe is used when URL is empty.
	Recipe Recipe `yaml:"recipe" json:"recipe"`
}

// IsStream reports whether the source is backed by a remote recording.
func (s Source) IsStream() bool { return s.URL != "" }

// Track is one chant in the catalog. Tracks are immutable once loaded.
type Track struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`

	// Deity is the display tag used by [SelectPlaylist], e.g. "Lord Shiva".
	Deity string `yaml:"deity" json:"deity"`

	// Duration is the nominal length in "m:ss" form.
	Duration string `yaml:"duration" json:"duration"`

	Source Source `yaml:"source" json:"source"`
}

// NominalSeconds returns the parsed nominal duration, or 0 when Duration is
// malformed.
func (t Track) NominalSeconds() int {
	secs, err := ParseDuration(t.Duration)
	if err != nil {
		return 0
	}
	return secs
}

// Validate checks the fields a sequencer depends on.
func (t Track) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if t.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if _, err := ParseDuration(t.Duration); err != nil {
		errs = append(errs, err)
	}
	if !t.Source.IsStream() && t.Source.Recipe.Frequency <= 0 {
		errs = append(errs, errors.New("source needs a url or a recipe frequency"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("chant: track %q: %w", t.ID, err)
	}
	return nil
}

// ParseDuration converts "m:ss" into whole seconds.
func ParseDuration(s string) (int, error) {
	mins, sec, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("chant: duration %q is not m:ss", s)
	}
	m, err := strconv.Atoi(mins)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("chant: duration %q has bad minutes", s)
	}
	ss, err := strconv.Atoi(sec)
	if err != nil || ss < 0 || ss > 59 {
		return 0, fmt.Errorf("chant: duration %q has bad seconds", s)
	}
	return m*60 + ss, nil
}

// FormatTime renders seconds as "m:ss". Negative values render as "0:00".
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatDuration is FormatTime for a [time.Duration], truncated to seconds.
func FormatDuration(d time.Duration) string {
	return FormatTime(int(d / time.Second))
}
