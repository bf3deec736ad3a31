package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/templeguardian/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian bytes to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	got := bytesToSamples(audio.MonoToStereo(samplesToBytes([]int16{100, -200, 300})))
	want := []int16{100, 100, -200, -200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestStereoToMono(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"average", []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"no overflow at max", []int16{32767, 32767}, []int16{32767}},
		{"no overflow at min", []int16{-32768, -32768}, []int16{-32768}},
		{"trailing half frame dropped", []int16{10, 20, 30}, []int16{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(audio.StereoToMono(samplesToBytes(tt.in)))
			if !slices.Equal(got, tt.want) {
				t.Errorf("StereoToMono = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample16(t *testing.T) {
	t.Run("same rate is a no-op", func(t *testing.T) {
		pcm := samplesToBytes([]int16{1, 2, 3})
		if out := audio.Resample16(pcm, 1, 44100, 44100); &out[0] != &pcm[0] {
			t.Error("expected the input slice back")
		}
	})

	t.Run("mono upsample", func(t *testing.T) {
		got := bytesToSamples(audio.Resample16(samplesToBytes([]int16{1000, 2000}), 1, 16000, 48000))
		if len(got) != 6 {
			t.Fatalf("got %d samples, want 6", len(got))
		}
		if got[0] != 1000 {
			t.Errorf("first sample = %d, want 1000", got[0])
		}
		if last := got[len(got)-1]; last < 1800 || last > 2200 {
			t.Errorf("last sample = %d, want close to 2000", last)
		}
	})

	t.Run("mono downsample", func(t *testing.T) {
		got := audio.Resample16(samplesToBytes([]int16{100, 200, 300, 400, 500, 600}), 1, 48000, 16000)
		if n := len(got) / 2; n != 2 {
			t.Errorf("got %d samples, want 2", n)
		}
	})

	t.Run("stereo keeps channels apart", func(t *testing.T) {
		got := bytesToSamples(audio.Resample16(samplesToBytes([]int16{100, -100, 100, -100}), 2, 16000, 48000))
		if len(got) != 12 {
			t.Fatalf("got %d samples, want 12", len(got))
		}
		for i := 0; i < len(got); i += 2 {
			if got[i] != 100 || got[i+1] != -100 {
				t.Fatalf("frame %d = (%d,%d), want (100,-100)", i/2, got[i], got[i+1])
			}
		}
	})
}

func TestConvert(t *testing.T) {
	mono44 := audio.Format{SampleRate: 44100, Channels: 1}
	stereo48 := audio.Format{SampleRate: 48000, Channels: 2}

	t.Run("matching format returns input", func(t *testing.T) {
		pcm := samplesToBytes([]int16{1, 2})
		out, err := audio.Convert(pcm, mono44, mono44)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		if &out[0] != &pcm[0] {
			t.Error("expected the input slice back")
		}
	})

	t.Run("full conversion", func(t *testing.T) {
		out, err := audio.Convert(samplesToBytes([]int16{1000, 2000, 3000, 4000}), mono44, stereo48)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		got := bytesToSamples(out)
		if len(got) == 0 || len(got)%2 != 0 {
			t.Fatalf("stereo output has %d samples", len(got))
		}
		if got[0] != got[1] {
			t.Errorf("first frame L=%d R=%d, want equal", got[0], got[1])
		}
	})

	t.Run("odd byte count", func(t *testing.T) {
		if _, err := audio.Convert([]byte{1, 2, 3}, mono44, stereo48); err == nil {
			t.Error("expected error for odd byte count")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if _, err := audio.Convert(nil, audio.Format{}, mono44); err == nil {
			t.Error("expected error for zero format")
		}
	})

	t.Run("unsupported layout", func(t *testing.T) {
		if _, err := audio.Convert(samplesToBytes([]int16{1, 2, 3, 4, 5, 6}), audio.Format{SampleRate: 44100, Channels: 6}, mono44); err == nil {
			t.Error("expected error for 6ch to mono")
		}
	})
}

func TestFormat(t *testing.T) {
	f := audio.Format{SampleRate: 44100, Channels: 1}
	if got := f.BytesPerSecond(); got != 88200 {
		t.Errorf("BytesPerSecond = %d, want 88200", got)
	}
	if got := f.FrameBytes(20_000_000); got != 1764 {
		t.Errorf("FrameBytes(20ms) = %d, want 1764", got)
	}
	if got := f.String(); got != "44100Hz mono" {
		t.Errorf("String = %q", got)
	}
	s := audio.Format{SampleRate: 48000, Channels: 2}
	if got := s.Offset(1_500_000_000); got != 288000 {
		t.Errorf("Offset(1.5s) = %d, want 288000", got)
	}
}
