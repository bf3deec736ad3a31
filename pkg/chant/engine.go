package chant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/templeguardian/pkg/audio"
)

// DefaultMaxDownload caps the size of a streamed WAV source.
const DefaultMaxDownload = 64 << 20

// EngineOption is a functional option for [NewEngine].
type EngineOption func(*Engine)

// WithSampleRate sets the sample rate of the shared audio context and of
// synthesized tracks.
func WithSampleRate(rate int) EngineOption {
	return func(e *Engine) {
		if rate > 0 {
			e.format.SampleRate = rate
		}
	}
}

// WithHTTPClient sets the client used to fetch URL sources.
func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) { e.client = c }
}

// WithMaxDownload caps the bytes read from a URL source.
func WithMaxDownload(n int64) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDownload = n
		}
	}
}

// WithContextOptions forwards options to the lazily created audio context.
func WithContextOptions(opts ...audio.ContextOption) EngineOption {
	return func(e *Engine) { e.ctxOpts = append(e.ctxOpts, opts...) }
}

// Engine renders tracks into a single process-scoped [audio.Context]. The
// context is created on first use and released by [Engine.Close].
// Synthesized PCM is cached per recipe since rendering is deterministic.
type Engine struct {
	format      audio.Format
	client      *http.Client
	maxDownload int64
	ctxOpts     []audio.ContextOption

	mu     sync.Mutex
	actx   *audio.Context
	closed bool
	cache  map[Recipe][]byte
}

// NewEngine creates an engine producing mono PCM.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		format:      audio.Format{SampleRate: DefaultSampleRate, Channels: 1},
		client:      &http.Client{Timeout: 30 * time.Second},
		maxDownload: DefaultMaxDownload,
		cache:       make(map[Recipe][]byte),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Format returns the PCM format every voice produces.
func (e *Engine) Format() audio.Format { return e.format }

// Context returns the shared audio context, creating it on first call.
func (e *Engine) Context() (*audio.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, audio.ErrContextClosed
	}
	if e.actx == nil {
		c, err := audio.NewContext(e.format, e.ctxOpts...)
		if err != nil {
			return nil, fmt.Errorf("chant: create audio context: %w", err)
		}
		e.actx = c
	}
	return e.actx, nil
}

// ActiveGraphs returns the number of live graphs, or 0 before the context
// exists.
func (e *Engine) ActiveGraphs() int {
	e.mu.Lock()
	c := e.actx
	e.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.ActiveGraphs()
}

// Close releases the audio context, silencing every voice. It is safe to
// call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	c := e.actx
	e.closed = true
	e.actx = nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Output returns a [Backend] whose voices play into sink.
func (e *Engine) Output(sink audio.Sink) Backend {
	return &output{engine: e, sink: sink}
}

type output struct {
	engine *Engine
	sink   audio.Sink
}

func (o *output) Start(ctx context.Context, t Track, at time.Duration, volume int) (Voice, error) {
	actx, err := o.engine.Context()
	if err != nil {
		return nil, err
	}
	if t.Source.IsStream() {
		return o.engine.startStream(ctx, actx, o.sink, t, at, volume)
	}
	return o.engine.startSynth(actx, o.sink, t, at, volume)
}

func (e *Engine) synthesize(r Recipe) ([]byte, error) {
	e.mu.Lock()
	pcm, ok := e.cache[r]
	e.mu.Unlock()
	if ok {
		return pcm, nil
	}
	pcm, err := Synthesize(r, e.format.SampleRate)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[r] = pcm
	e.mu.Unlock()
	return pcm, nil
}

// readerOnly hides the Seek method so that synthesized graphs refuse to seek.
type readerOnly struct{ io.Reader }

func (e *Engine) startSynth(actx *audio.Context, sink audio.Sink, t Track, at time.Duration, volume int) (Voice, error) {
	pcm, err := e.synthesize(t.Source.Recipe)
	if err != nil {
		return nil, fmt.Errorf("chant: synthesize %q: %w", t.ID, err)
	}
	off := min(e.format.Offset(at), int64(len(pcm)))
	g, err := actx.NewGraph(readerOnly{bytes.NewReader(pcm[off:])}, sink, volume)
	if err != nil {
		return nil, fmt.Errorf("chant: start %q: %w", t.ID, err)
	}
	return &graphVoice{graph: g, length: t.Source.Recipe.Length()}, nil
}

func (e *Engine) startStream(ctx context.Context, actx *audio.Context, sink audio.Sink, t Track, at time.Duration, volume int) (Voice, error) {
	pcm, err := e.fetch(ctx, t.Source.URL)
	if err != nil {
		return nil, fmt.Errorf("chant: fetch %q: %w", t.ID, err)
	}
	src := bytes.NewReader(pcm)
	if _, err := src.Seek(min(e.format.Offset(at), int64(len(pcm))), io.SeekStart); err != nil {
		return nil, fmt.Errorf("chant: seek %q: %w", t.ID, err)
	}
	g, err := actx.NewGraph(src, sink, volume)
	if err != nil {
		return nil, fmt.Errorf("chant: start %q: %w", t.ID, err)
	}
	length := time.Duration(int64(len(pcm)) * int64(time.Second) / int64(e.format.BytesPerSecond()))
	return &graphVoice{graph: g, length: length}, nil
}

// fetch downloads a WAV file and converts it to the engine format.
func (e *Engine) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxDownload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > e.maxDownload {
		return nil, fmt.Errorf("source larger than %d bytes", e.maxDownload)
	}

	w, err := DecodeWAV(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	from := audio.Format{SampleRate: w.SampleRate, Channels: w.Channels}
	return audio.Convert(w.PCM, from, e.format)
}

// graphVoice adapts an [audio.Graph] to [Voice].
type graphVoice struct {
	graph  *audio.Graph
	length time.Duration
}

func (v *graphVoice) SetVolume(percent int)           { v.graph.SetGain(percent) }
func (v *graphVoice) Seek(at time.Duration) error     { return v.graph.Seek(at) }
func (v *graphVoice) Duration() (time.Duration, bool) { return v.length, v.length > 0 }

func (v *graphVoice) Stop() error {
	v.graph.Stop()
	return nil
}

var _ Backend = (*output)(nil)
