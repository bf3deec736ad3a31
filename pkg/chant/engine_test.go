package chant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/templeguardian/pkg/audio"
	"github.com/MrWong99/templeguardian/pkg/audio/mock"
	"github.com/MrWong99/templeguardian/pkg/chant"
)

func newTestEngine(t *testing.T, opts ...chant.EngineOption) *chant.Engine {
	t.Helper()
	opts = append([]chant.EngineOption{
		chant.WithSampleRate(8000),
		chant.WithContextOptions(audio.WithFrameDuration(time.Millisecond)),
	}, opts...)
	e := chant.NewEngine(opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func synthTrack(seconds float64) chant.Track {
	return chant.Track{
		ID: "t", Title: "T", Duration: "0:30",
		Source: chant.Source{Recipe: chant.Recipe{Frequency: 136.1, Seconds: seconds}},
	}
}

func TestEngine_LazyContext(t *testing.T) {
	e := newTestEngine(t)
	if n := e.ActiveGraphs(); n != 0 {
		t.Fatalf("ActiveGraphs before use = %d", n)
	}
	c1, err := e.Context()
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	c2, _ := e.Context()
	if c1 != c2 {
		t.Error("Context returned two different contexts")
	}
	if f := c1.Format(); f.SampleRate != 8000 || f.Channels != 1 {
		t.Errorf("format = %s", f)
	}
}

func TestEngine_SynthVoice(t *testing.T) {
	e := newTestEngine(t)
	sink := &mock.Sink{}
	v, err := e.Output(sink).Start(context.Background(), synthTrack(10), 0, 100)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d, ok := v.Duration(); !ok || d != 10*time.Second {
		t.Errorf("Duration = %v, %v; want 10s", d, ok)
	}
	if err := v.Seek(time.Second); !errors.Is(err, audio.ErrNotSeekable) {
		t.Errorf("Seek = %v, want ErrNotSeekable", err)
	}
	if e.ActiveGraphs() != 1 {
		t.Errorf("ActiveGraphs = %d, want 1", e.ActiveGraphs())
	}
	if err := v.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := v.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if n := e.ActiveGraphs(); n != 0 {
		t.Errorf("ActiveGraphs after Stop = %d, want 0", n)
	}
}

func TestEngine_SynthPlaysToEnd(t *testing.T) {
	e := newTestEngine(t)
	sink := &mock.Sink{}
	// Start half way through a 0.1s recipe.
	if _, err := e.Output(sink).Start(context.Background(), synthTrack(0.1), 50*time.Millisecond, 100); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.ActiveGraphs() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := e.ActiveGraphs(); n != 0 {
		t.Fatalf("graph still active after source end")
	}
	if got, want := len(sink.Bytes()), 400*2; got != want {
		t.Errorf("played %d bytes, want %d", got, want)
	}
}

func TestEngine_StreamVoice(t *testing.T) {
	// One second of 16 kHz stereo, which the engine converts to 8 kHz mono.
	wav := encodeWAV(t, make([]int, 16000*2), 16000, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/om.wav" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	e := newTestEngine(t, chant.WithHTTPClient(srv.Client()))
	out := e.Output(&mock.Sink{})

	track := chant.Track{ID: "om", Title: "Om", Duration: "0:01", Source: chant.Source{URL: srv.URL + "/om.wav"}}
	v, err := out.Start(context.Background(), track, 0, 80)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer v.Stop()
	if d, ok := v.Duration(); !ok || d != time.Second {
		t.Errorf("Duration = %v, %v; want 1s", d, ok)
	}
	if err := v.Seek(500 * time.Millisecond); err != nil {
		t.Errorf("Seek on stream voice: %v", err)
	}

	missing := track
	missing.Source.URL = srv.URL + "/missing.wav"
	if _, err := out.Start(context.Background(), missing, 0, 80); err == nil {
		t.Error("expected error for 404 source")
	}
}

func TestEngine_StreamTooLarge(t *testing.T) {
	wav := encodeWAV(t, make([]int, 2048), 8000, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	e := newTestEngine(t, chant.WithHTTPClient(srv.Client()), chant.WithMaxDownload(1024))
	track := chant.Track{ID: "big", Source: chant.Source{URL: srv.URL}}
	if _, err := e.Output(&mock.Sink{}).Start(context.Background(), track, 0, 100); err == nil {
		t.Error("expected error for oversized source")
	}
}

func TestEngine_Close(t *testing.T) {
	e := newTestEngine(t)
	out := e.Output(&mock.Sink{})
	for range 2 {
		if _, err := out.Start(context.Background(), synthTrack(30), 0, 100); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := e.ActiveGraphs(); n != 0 {
		t.Errorf("ActiveGraphs after Close = %d, want 0", n)
	}
	if _, err := out.Start(context.Background(), synthTrack(1), 0, 100); !errors.Is(err, audio.ErrContextClosed) {
		t.Errorf("Start after Close = %v, want ErrContextClosed", err)
	}
}

// The sequencer and the engine together: play then pause leaves no graph
// running in the shared context.
func TestSequencerWithEngine_PlayPause(t *testing.T) {
	e := newTestEngine(t)
	s, err := chant.NewSequencer(chant.DefaultCatalog(), e.Output(audio.NewBroadcaster(0)))
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	defer s.Close()

	done := make(chan chant.Snapshot, 8)
	s.Subscribe(func(snap chant.Snapshot) { done <- snap })

	if err := s.TogglePlayPause(); err != nil {
		t.Fatalf("play: %v", err)
	}
	timeout := time.After(5 * time.Second)
	for playing := false; !playing; {
		select {
		case snap := <-done:
			playing = snap.Playing
			if snap.LoadFailed {
				t.Fatal("load failed")
			}
		case <-timeout:
			t.Fatal("sequencer never reached playing")
		}
	}
	if n := e.ActiveGraphs(); n != 1 {
		t.Errorf("ActiveGraphs while playing = %d, want 1", n)
	}
	if got := s.Snapshot().Duration; got != chant.DefaultRecipeSeconds {
		t.Errorf("duration = %d, want the recipe length %d", got, chant.DefaultRecipeSeconds)
	}

	if err := s.TogglePlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if n := e.ActiveGraphs(); n != 0 {
		t.Errorf("ActiveGraphs after pause = %d, want 0", n)
	}
}
