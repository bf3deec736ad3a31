// Package audio is the small PCM plumbing layer behind the chant players.
//
// A process-scoped [Context] owns every playing [Graph]. A graph reads 16-bit
// little-endian PCM from a source, applies a gain stage, and paces fixed-size
// frames into a [Sink] in real time. [Broadcaster] is the usual sink: it fans
// frames out to any number of listeners without ever blocking the graph.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// FrameBytes returns the size of one frame of length d, rounded down to a
// whole sample across all channels.
func (f Format) FrameBytes(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	block := f.Channels * 2
	if block <= 0 {
		return 0
	}
	return n - n%block
}

// Offset converts a playback position into a block-aligned byte offset.
func (f Format) Offset(at time.Duration) int64 {
	n := int64(f.BytesPerSecond()) * int64(at) / int64(time.Second)
	block := int64(f.Channels * 2)
	if block <= 0 {
		return 0
	}
	return n - n%block
}

// Valid reports whether the format can be used for PCM playback.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// String returns e.g. "44100Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// AudioFrame is one paced chunk of PCM flowing from a [Graph] to its sink.
type AudioFrame struct {
	// Data is 16-bit little-endian PCM in the owning context's format.
	Data []byte

	SampleRate int
	Channels   int

	// Timestamp is the position of the first sample relative to the start
	// of the source.
	Timestamp time.Duration
}

// Sink receives frames from a graph. WriteFrame is called from the graph's
// pacing goroutine and must not block for long.
type Sink interface {
	WriteFrame(AudioFrame)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(AudioFrame)

// WriteFrame implements [Sink].
func (f SinkFunc) WriteFrame(fr AudioFrame) { f(fr) }
