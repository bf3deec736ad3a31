package chant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

// wavHeaderSize is the size of the canonical RIFF/WAVE header written by
// [StreamHeader].
const wavHeaderSize = 44

// WAV is a decoded 16-bit PCM recording.
type WAV struct {
	SampleRate int
	Channels   int
	PCM        []byte // interleaved little-endian int16
}

// Duration returns the playback length of the samples.
func (w WAV) Duration() time.Duration {
	bytesPerSec := w.SampleRate * w.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(int64(len(w.PCM)) * int64(time.Second) / int64(bytesPerSec))
}

// DecodeWAV reads a RIFF/WAVE file from r. Chunks other than fmt and data
// are skipped, and a data chunk shorter than its declared size is read up to
// the end of r. Only 16-bit integer PCM is accepted.
func DecodeWAV(r io.ReadSeeker) (WAV, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return WAV{}, fmt.Errorf("chant: wav: %w", err)
		}
		return WAV{}, errors.New("chant: not a valid wav file")
	}
	if dec.WavAudioFormat != 1 {
		return WAV{}, fmt.Errorf("chant: wav format %d is not PCM", dec.WavAudioFormat)
	}
	if dec.BitDepth != 16 {
		return WAV{}, fmt.Errorf("chant: wav has %d-bit samples, want 16", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return WAV{}, fmt.Errorf("chant: wav data: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return WAV{}, errors.New("chant: wav has no samples")
	}

	pcm := make([]byte, 2*len(buf.Data))
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(v)))
	}
	return WAV{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		PCM:        pcm,
	}, nil
}

// StreamHeader returns a 16-bit PCM WAV header for a stream of unknown
// length. The size fields hold their maximum and players read until the
// connection closes. The header is written before any sample exists, so it
// cannot come from an encoder that seeks back to patch sizes on Close.
func StreamHeader(sampleRate, channels int) []byte {
	const dataSize = 0xFFFFFFFF - 36
	blockAlign := channels * 2

	b := make([]byte, wavHeaderSize)
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], 36+dataSize)
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(b[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(b[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(b[34:36], 16)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], dataSize)
	return b
}
