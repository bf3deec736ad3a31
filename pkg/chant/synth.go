package chant

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// DefaultSampleRate is the synthesis rate used when none is configured.
const DefaultSampleRate = 44100

// echoDelay and echoGain shape the feedback echo that stands in for reverb.
const (
	echoDelay = 100 * time.Millisecond
	echoGain  = 0.2
)

// partial is one sine layer of the devotional tone: ratio times the base
// frequency at the given amplitude.
type partial struct {
	ratio float64
	gain  float64
}

var partials = []partial{
	{1, 0.3},    // fundamental
	{2, 0.15},   // octave
	{3, 0.1},    // twelfth
	{1.5, 0.05}, // fifth
}

// Recipe is a synthesis description for a track without a recording.
type Recipe struct {
	// Frequency is the base tone in Hz.
	Frequency float64 `yaml:"frequency" json:"frequency"`

	// Seconds is the rendered length.
	Seconds float64 `yaml:"seconds" json:"seconds"`

	// VibratoRate (Hz) and VibratoDepth (fraction of Frequency) add a slow
	// pitch wobble. Zero depth disables it.
	VibratoRate  float64 `yaml:"vibrato_rate" json:"vibrato_rate,omitempty"`
	VibratoDepth float64 `yaml:"vibrato_depth" json:"vibrato_depth,omitempty"`
}

// Length returns the rendered duration of the recipe.
func (r Recipe) Length() time.Duration {
	return time.Duration(r.Seconds * float64(time.Second))
}

// ErrBadRecipe is returned by [Synthesize] for unusable recipes.
var ErrBadRecipe = errors.New("chant: recipe needs positive frequency, length and sample rate")

// Synthesize renders r as 16-bit little-endian mono PCM. The output depends
// only on its inputs.
func Synthesize(r Recipe, sampleRate int) ([]byte, error) {
	if r.Frequency <= 0 || r.Seconds <= 0 || sampleRate <= 0 {
		return nil, ErrBadRecipe
	}
	n := int(float64(sampleRate) * r.Seconds)
	samples := make([]int16, n)
	delay := int(float64(sampleRate) * echoDelay.Seconds())
	vibrato := r.VibratoDepth > 0 && r.VibratoRate > 0

	// phase is only advanced when vibrato is on; a steady tone uses the
	// closed form so that the partials stay phase-locked.
	var phase float64
	dt := 1 / float64(sampleRate)

	for i := range n {
		t := float64(i) * dt
		envelope := math.Exp(-t*0.5) * math.Sin(t*math.Pi*2)

		base := 2 * math.Pi * r.Frequency * t
		if vibrato {
			f := r.Frequency * (1 + r.VibratoDepth*math.Sin(2*math.Pi*r.VibratoRate*t))
			base = phase
			phase += 2 * math.Pi * f * dt
		}

		var s float64
		for _, p := range partials {
			s += math.Sin(base*p.ratio) * p.gain
		}
		if i > delay {
			s += float64(samples[i-delay]) / 32768 * echoGain
		}
		s *= envelope
		samples[i] = int16(math.Max(-1, math.Min(1, s)) * math.MaxInt16)
	}

	pcm := make([]byte, n*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm, nil
}
