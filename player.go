// Package aura plays a user-selected audio file and exposes the live
// frequency spectrum of what is being heard, for the visualizer in
// cmd/aura_ui.
package aura

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/musicaura-go/internal/analysis"
	intaudio "github.com/cbegin/musicaura-go/internal/audio"
	"github.com/cbegin/musicaura-go/internal/decode"
)

// PlaybackEvent carries playback state changes from Watch().
type PlaybackEvent struct {
	Kind  int // EventPlaybackEnded or EventTrackLoaded
	Track string
}

const (
	EventPlaybackEnded int = iota
	EventTrackLoaded
)

var ErrClosed = errors.New("aura: player closed")

// backend is the audio output a track plays through.
type backend interface {
	Play()
	Pause()
	IsPlaying() bool
	Position() time.Duration
	SetPosition(pos time.Duration) error
	SetVolume(volume float64)
	Stop() error
}

type backendFactory func(sampleRate int, src intaudio.SampleSource) (backend, error)

func newAudioBackend(sampleRate int, src intaudio.SampleSource) (backend, error) {
	return intaudio.NewPlayer(sampleRate, src)
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	analysis   analysis.Config
	volume     float64
	newBackend backendFactory
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		analysis:   analysis.DefaultConfig(),
		volume:     1,
		newBackend: newAudioBackend,
	}
}

// WithFFTSize sets the analysis window. It must be a power of two.
func WithFFTSize(n int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.analysis.FFTSize = n
	}
}

// WithSmoothing sets the time constant blending each spectrum with the
// previous one, in [0,1].
func WithSmoothing(tau float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.analysis.Smoothing = tau
	}
}

func WithDecibelRange(minDB, maxDB float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.analysis.MinDecibels = minDB
		cfg.analysis.MaxDecibels = maxDB
	}
}

func WithVolume(v float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.volume = clampUnit(v)
	}
}

func withBackend(f backendFactory) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.newBackend = f
	}
}

// Player owns the loaded track, its audio output and the analysis pipeline.
// Methods are safe for concurrent use; the end-of-track notification arrives
// from the audio thread.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	track      *decode.Track
	source     *intaudio.PCMSource
	out        backend
	pipeline   *Pipeline
	volume     float64
	closed     bool

	playing atomic.Bool
	// gen identifies the bound track so a late end notification from a
	// replaced source is ignored.
	gen atomic.Uint64

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("aura: sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	// Bad analysis options fail here rather than on first play.
	if _, err := analysis.New(sampleRate, cfg.analysis); err != nil {
		return nil, err
	}
	return &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		volume:     cfg.volume,
	}, nil
}

func (p *Player) SampleRate() int { return p.sampleRate }

// LoadFile reads path and hands it to Load.
func (p *Player) LoadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return p.Load(path, data)
}

// Load binds a new track. Inputs that are not audio are ignored and report
// false with a nil error. Decode failures of audio files are returned and
// leave the current track in place.
func (p *Player) Load(name string, data []byte) (bool, error) {
	if !decode.IsAudio(name, decode.Head(data)) {
		slog.Debug("ignoring non-audio input", "name", name)
		return false, nil
	}
	track, err := decode.Decode(name, data, p.sampleRate)
	if err != nil {
		return false, err
	}

	src := intaudio.NewPCMSource(track.Samples)
	out, err := p.cfg.newBackend(p.sampleRate, src)
	if err != nil {
		return false, fmt.Errorf("aura: audio output: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = out.Stop()
		return false, ErrClosed
	}
	p.releaseLocked()
	gen := p.gen.Add(1)
	p.playing.Store(false)
	p.track = track
	p.source = src
	p.out = out
	out.SetVolume(p.volume)
	src.SetOnEnd(func() { p.handleEnd(gen) })
	if p.pipeline != nil {
		p.pipeline.connect(src)
	}
	p.mu.Unlock()

	slog.Info("track loaded",
		"name", track.Name,
		"format", string(track.Format),
		"duration", track.Duration(),
	)
	p.sendEvent(PlaybackEvent{Kind: EventTrackLoaded, Track: track.DisplayName()})
	return true, nil
}

// releaseLocked stops and forgets the current output. p.mu must be held.
func (p *Player) releaseLocked() {
	if p.source != nil {
		p.source.SetOnEnd(nil)
	}
	if p.out != nil {
		if err := p.out.Stop(); err != nil {
			slog.Warn("stopping audio output", "err", err)
		}
	}
	p.track = nil
	p.source = nil
	p.out = nil
}

// handleEnd runs on the audio thread. It must not take p.mu: the output
// holds its own lock while pulling samples, and Seek takes both.
func (p *Player) handleEnd(gen uint64) {
	if p.gen.Load() != gen {
		return
	}
	if p.playing.CompareAndSwap(true, false) {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	}
}

// TogglePlay starts or pauses playback and returns the new playing state.
// It does nothing when no track is loaded. The analysis pipeline is attached
// on the first start.
func (p *Player) TogglePlay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.track == nil {
		return false
	}
	if p.playing.Load() {
		p.out.Pause()
		p.playing.Store(false)
		return false
	}

	if p.pipeline == nil {
		if err := p.attachLocked(); err != nil {
			slog.Error("attaching analysis pipeline", "err", err)
			return false
		}
	}
	if !intaudio.ContextReady() {
		// Suspended until a user gesture; the platform resumes it.
		slog.Debug("audio context not ready yet")
	}
	if p.source.Finished() && p.source.Frame() >= p.source.Frames() {
		p.seekLocked(0)
	}
	p.out.SetVolume(p.volume)
	p.out.Play()
	p.playing.Store(true)
	return true
}

// attachLocked builds the analysis pipeline. p.mu must be held.
func (p *Player) attachLocked() error {
	if p.pipeline != nil {
		return ErrPipelineAttached
	}
	pl, err := newPipeline(p.sampleRate, p.cfg.analysis)
	if err != nil {
		return err
	}
	pl.connect(p.source)
	p.pipeline = pl
	slog.Debug("analysis pipeline attached",
		"fftSize", p.cfg.analysis.FFTSize,
		"smoothing", p.cfg.analysis.Smoothing,
	)
	return nil
}

// Pipeline returns the analysis pipeline, or nil before the first play.
func (p *Player) Pipeline() *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pipeline
}

// WaitReady blocks until audio has reached the analyzer.
func (p *Player) WaitReady(ctx context.Context) error {
	pl := p.Pipeline()
	if pl == nil {
		return ErrNoPipeline
	}
	return pl.wait(ctx)
}

// Seek moves playback to fraction of the track duration. It does nothing
// while the duration is unknown.
func (p *Player) Seek(fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.durationLocked()
	if d <= 0 {
		return
	}
	p.seekLocked(clampUnit(fraction) * d)
}

// SeekTo moves playback to seconds, clamped to the track.
func (p *Player) SeekTo(seconds float64) {
	if math.IsNaN(seconds) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.durationLocked()
	if d <= 0 {
		return
	}
	p.seekLocked(math.Max(0, math.Min(seconds, d)))
}

func (p *Player) seekLocked(seconds float64) {
	pos := time.Duration(seconds * float64(time.Second))
	if err := p.out.SetPosition(pos); err != nil {
		slog.Warn("seek failed", "seconds", seconds, "err", err)
	}
}

func (p *Player) framesAt(pos time.Duration) int64 {
	return int64(math.Round(pos.Seconds() * float64(p.sampleRate)))
}

// Position returns what the listener hears now, in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out == nil {
		return 0
	}
	return math.Min(p.out.Position().Seconds(), p.durationLocked())
}

// PlaybackPosition returns the output position in frames.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out == nil {
		return 0
	}
	return p.framesAt(p.out.Position())
}

// Duration returns the loaded track's length in seconds, or 0.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

func (p *Player) durationLocked() float64 {
	if p.track == nil {
		return 0
	}
	return p.track.Duration()
}

func (p *Player) Playing() bool { return p.playing.Load() }

// TrackInfo describes the bound track. Display prefers tag metadata over the
// file name.
type TrackInfo struct {
	Name     string
	Title    string
	Artist   string
	Display  string
	Format   string
	Duration float64
}

// Track reports the bound track; ok is false when none is loaded.
func (p *Player) Track() (info TrackInfo, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return TrackInfo{}, false
	}
	return TrackInfo{
		Name:     p.track.Name,
		Title:    p.track.Title,
		Artist:   p.track.Artist,
		Display:  p.track.DisplayName(),
		Format:   string(p.track.Format),
		Duration: p.track.Duration(),
	}, true
}

// BinCount is the number of spectrum entries Spectrum fills.
func (p *Player) BinCount() int { return p.cfg.analysis.FFTSize / 2 }

// Spectrum fills dst with the byte spectrum of what is being heard. Before
// the pipeline is attached dst is zeroed.
func (p *Player) Spectrum(dst []uint8) {
	p.mu.Lock()
	pl := p.pipeline
	var pos int64
	if p.out != nil {
		pos = p.framesAt(p.out.Position())
	}
	p.mu.Unlock()
	if pl == nil {
		clear(dst)
		return
	}
	pl.spectrum(dst, pos)
}

// Watch returns a channel that receives playback events. The channel is
// buffered (cap 8) and events are dropped when it is full. Only the most
// recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// SetVolume sets the output volume, clamped to [0,1].
func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampUnit(volume)
	if p.out != nil {
		p.out.SetVolume(p.volume)
	}
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close stops playback and releases the pipeline and audio output. It is
// safe to call more than once.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.gen.Add(1)
	p.playing.Store(false)
	var err error
	if p.out != nil {
		err = p.out.Stop()
		p.out = nil
	}
	if p.source != nil {
		p.source.SetOnEnd(nil)
	}
	p.track = nil
	p.source = nil
	pl := p.pipeline
	p.mu.Unlock()

	if pl != nil {
		_ = pl.Close()
	}
	return err
}

func clampUnit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
