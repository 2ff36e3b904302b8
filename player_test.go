package aura

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/musicaura-go/internal/analysis"
	intaudio "github.com/cbegin/musicaura-go/internal/audio"
	"github.com/cbegin/musicaura-go/internal/decode"
)

const testRate = 8000

// fakeBackend stands in for the ebiten player. pump plays frames the way the
// audio thread would.
type fakeBackend struct {
	mu      sync.Mutex
	src     *intaudio.PCMSource
	playing bool
	volume  float64
	stops   int
}

func (f *fakeBackend) Play() {
	f.mu.Lock()
	f.playing = true
	f.mu.Unlock()
}

func (f *fakeBackend) Pause() {
	f.mu.Lock()
	f.playing = false
	f.mu.Unlock()
}

func (f *fakeBackend) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeBackend) Position() time.Duration {
	return time.Duration(float64(f.src.Frame()) / testRate * float64(time.Second))
}

func (f *fakeBackend) SetPosition(pos time.Duration) error {
	f.src.SeekFrame(int64(math.Round(pos.Seconds() * testRate)))
	return nil
}

func (f *fakeBackend) SetVolume(v float64) {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
}

func (f *fakeBackend) Stop() error {
	f.mu.Lock()
	f.playing = false
	f.stops++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) pump(frames int) {
	if !f.IsPlaying() {
		return
	}
	f.src.Process(make([]float32, frames*2))
	if f.src.Finished() {
		f.Pause()
	}
}

type fakeOutputs struct {
	mu       sync.Mutex
	backends []*fakeBackend
}

func (o *fakeOutputs) factory(_ int, src intaudio.SampleSource) (backend, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := &fakeBackend{src: src.(*intaudio.PCMSource)}
	o.backends = append(o.backends, b)
	return b, nil
}

func (o *fakeOutputs) last() *fakeBackend {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backends[len(o.backends)-1]
}

func newTestPlayer(t *testing.T, opts ...PlayerOption) (*Player, *fakeOutputs) {
	t.Helper()
	outs := &fakeOutputs{}
	p, err := NewPlayer(testRate, append([]PlayerOption{withBackend(outs.factory)}, opts...)...)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, outs
}

// sineWAV returns one second of a mono 16-bit sine at freq.
func sineWAV(t *testing.T, freq float64) []byte {
	t.Helper()
	data := make([]int, testRate)
	for i := range data {
		data[i] = int(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	path := filepath.Join(t.TempDir(), "sine.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return raw
}

func mustLoad(t *testing.T, p *Player, name string, data []byte) {
	t.Helper()
	ok, err := p.Load(name, data)
	if err != nil || !ok {
		t.Fatalf("Load(%q) = %v, %v; want true, nil", name, ok, err)
	}
}

func nextEvent(t *testing.T, ch <-chan PlaybackEvent) PlaybackEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	default:
		t.Fatal("expected a playback event")
		return PlaybackEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan PlaybackEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestNewPlayerRejectsBadOptions(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := NewPlayer(testRate, WithFFTSize(100)); !errors.Is(err, analysis.ErrFFTSize) {
		t.Fatalf("err = %v, want ErrFFTSize", err)
	}
	if _, err := NewPlayer(testRate, WithDecibelRange(-10, -20)); !errors.Is(err, analysis.ErrDecibelRange) {
		t.Fatalf("err = %v, want ErrDecibelRange", err)
	}
}

func TestLoadIgnoresNonAudio(t *testing.T) {
	p, outs := newTestPlayer(t)
	events := p.Watch()
	ok, err := p.Load("notes.txt", []byte("hello world"))
	if ok || err != nil {
		t.Fatalf("Load = %v, %v; want false, nil", ok, err)
	}
	if _, loaded := p.Track(); loaded {
		t.Fatal("non-audio input must not bind a track")
	}
	if len(outs.backends) != 0 {
		t.Fatal("non-audio input must not open an output")
	}
	expectNoEvent(t, events)
}

func TestLoadBindsTrack(t *testing.T) {
	p, _ := newTestPlayer(t)
	events := p.Watch()
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))

	info, ok := p.Track()
	if !ok || info.Name != "sine.wav" || info.Format != string(decode.FormatWAV) {
		t.Fatalf("track = %+v, %v", info, ok)
	}
	if got := p.Duration(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("duration = %v, want 1", got)
	}
	if p.Position() != 0 || p.Playing() {
		t.Fatalf("position = %v playing = %v, want 0 and false", p.Position(), p.Playing())
	}
	if ev := nextEvent(t, events); ev.Kind != EventTrackLoaded || ev.Track != "sine.wav" {
		t.Fatalf("event = %+v, want track loaded", ev)
	}
}

func TestLoadDecodeErrorKeepsTrack(t *testing.T) {
	p, _ := newTestPlayer(t)
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	ok, err := p.Load("song.flac", []byte("fLaC\x00\x00\x00\x22rest"))
	if ok || !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Fatalf("Load = %v, %v; want false, ErrUnsupportedFormat", ok, err)
	}
	if info, _ := p.Track(); info.Name != "sine.wav" {
		t.Fatalf("track = %q, want previous track kept", info.Name)
	}
}

func TestTogglePlayWithoutTrack(t *testing.T) {
	p, _ := newTestPlayer(t)
	if p.TogglePlay() {
		t.Fatal("TogglePlay without a track must not start playback")
	}
	if p.Pipeline() != nil {
		t.Fatal("pipeline must not be attached without a track")
	}
}

func TestTogglePlayAttachesPipelineOnce(t *testing.T) {
	p, outs := newTestPlayer(t)
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))

	if !p.TogglePlay() || !p.Playing() {
		t.Fatal("first toggle should start playback")
	}
	if !outs.last().IsPlaying() {
		t.Fatal("backend not playing")
	}
	pl := p.Pipeline()
	if pl == nil {
		t.Fatal("pipeline not attached on first play")
	}
	if p.TogglePlay() || p.Playing() || outs.last().IsPlaying() {
		t.Fatal("second toggle should pause")
	}
	p.TogglePlay()
	if p.Pipeline() != pl {
		t.Fatal("pipeline must be constructed once")
	}

	p.mu.Lock()
	err := p.attachLocked()
	p.mu.Unlock()
	if !errors.Is(err, ErrPipelineAttached) {
		t.Fatalf("second attach err = %v, want ErrPipelineAttached", err)
	}

	mustLoad(t, p, "other.wav", sineWAV(t, 880))
	if p.Pipeline() != pl {
		t.Fatal("loading a track must reuse the pipeline")
	}
}

func TestWaitReady(t *testing.T) {
	p, outs := newTestPlayer(t)
	if err := p.WaitReady(context.Background()); !errors.Is(err, ErrNoPipeline) {
		t.Fatalf("err = %v, want ErrNoPipeline", err)
	}
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	p.TogglePlay()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.WaitReady(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v before audio flowed, want context.Canceled", err)
	}

	outs.last().pump(256)
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady after audio: %v", err)
	}
}

func TestPlaybackEndedEvent(t *testing.T) {
	p, outs := newTestPlayer(t)
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	events := p.Watch()
	p.TogglePlay()

	b := outs.last()
	for i := 0; i < 10; i++ {
		b.pump(1024)
	}
	if p.Playing() {
		t.Fatal("playing should be false after the track ends")
	}
	if ev := nextEvent(t, events); ev.Kind != EventPlaybackEnded {
		t.Fatalf("event = %+v, want playback ended", ev)
	}
	expectNoEvent(t, events)

	if !p.TogglePlay() {
		t.Fatal("play after end should restart")
	}
	if p.Position() != 0 {
		t.Fatalf("position = %v after restart, want 0", p.Position())
	}
}

func TestPlayingReportsEndWhenEventDropped(t *testing.T) {
	p, outs := newTestPlayer(t)
	events := p.Watch()
	wav := sineWAV(t, 440)
	for i := 0; i < cap(events); i++ {
		mustLoad(t, p, "sine.wav", wav)
	}
	p.TogglePlay()
	b := outs.last()
	for i := 0; i < 10; i++ {
		b.pump(1024)
	}
	if p.Playing() {
		t.Fatal("playing should be false after the track ends, even with a full event channel")
	}
	for i := 0; i < cap(events); i++ {
		if ev := nextEvent(t, events); ev.Kind != EventTrackLoaded {
			t.Fatalf("event %d = %+v, want track loaded", i, ev)
		}
	}
	expectNoEvent(t, events)
}

func TestLoadIgnoresLateEndFromReplacedTrack(t *testing.T) {
	p, outs := newTestPlayer(t)
	mustLoad(t, p, "a.wav", sineWAV(t, 440))
	p.TogglePlay()
	old := outs.last()

	mustLoad(t, p, "b.wav", sineWAV(t, 440))
	if old.stops != 1 {
		t.Fatalf("old output stops = %d, want 1", old.stops)
	}
	if p.Playing() || p.Position() != 0 {
		t.Fatal("new track should start paused at zero")
	}
	events := p.Watch()
	p.TogglePlay()
	old.src.Process(make([]float32, 2*testRate+2))
	if !p.Playing() {
		t.Fatal("end of a replaced track must not stop the new one")
	}
	expectNoEvent(t, events)
}

func TestSeek(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Seek(0.5) // no track: no-op
	p.SeekTo(3)

	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	tests := []struct {
		name string
		seek func()
		want float64
	}{
		{"half", func() { p.Seek(0.5) }, 0.5},
		{"past end", func() { p.Seek(2) }, 1},
		{"negative", func() { p.Seek(-1) }, 0},
		{"absolute", func() { p.SeekTo(0.25) }, 0.25},
		{"absolute past end", func() { p.SeekTo(30) }, 1},
		{"nan ignored", func() { p.Seek(math.NaN()) }, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.seek()
			if got := p.Position(); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("position = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSeekToEndWhilePlayingEnds(t *testing.T) {
	p, outs := newTestPlayer(t)
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	events := p.Watch()
	p.TogglePlay()
	p.Seek(1)
	outs.last().pump(128)
	if p.Playing() {
		t.Fatal("seeking to the end should end playback")
	}
	if ev := nextEvent(t, events); ev.Kind != EventPlaybackEnded {
		t.Fatalf("event = %+v, want playback ended", ev)
	}
}

func TestSpectrumFollowsAudio(t *testing.T) {
	p, outs := newTestPlayer(t)
	bins := make([]uint8, p.BinCount())
	for i := range bins {
		bins[i] = 7
	}
	p.Spectrum(bins)
	for i, v := range bins {
		if v != 0 {
			t.Fatalf("bin %d = %d before play, want 0", i, v)
		}
	}

	mustLoad(t, p, "sine.wav", sineWAV(t, 1000))
	p.TogglePlay()
	outs.last().pump(2048)
	p.Spectrum(bins)

	peak := 0
	for i, v := range bins {
		if v > bins[peak] {
			peak = i
		}
	}
	// 1 kHz at 8 kHz with a 512-point window lands on bin 64.
	if peak != 64 || bins[peak] == 0 {
		t.Fatalf("peak bin = %d (%d), want 64", peak, bins[peak])
	}
}

func TestVolume(t *testing.T) {
	p, outs := newTestPlayer(t, WithVolume(0.5))
	if p.Volume() != 0.5 {
		t.Fatalf("volume = %v, want 0.5", p.Volume())
	}
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	if outs.last().volume != 0.5 {
		t.Fatalf("backend volume = %v, want 0.5", outs.last().volume)
	}
	p.SetVolume(1.5)
	if p.Volume() != 1 {
		t.Fatalf("volume should clamp to 1, got %v", p.Volume())
	}
	p.SetVolume(-2)
	if p.Volume() != 0 || outs.last().volume != 0 {
		t.Fatalf("volume should clamp to 0, got %v", p.Volume())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p, outs := newTestPlayer(t)
	mustLoad(t, p, "sine.wav", sineWAV(t, 440))
	p.TogglePlay()
	pl := p.Pipeline()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if outs.last().stops != 1 {
		t.Fatalf("backend stops = %d, want 1", outs.last().stops)
	}
	if !pl.Closed() {
		t.Fatal("pipeline should be closed")
	}
	if err := p.WaitReady(context.Background()); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("WaitReady err = %v, want ErrPipelineClosed", err)
	}
	if p.Playing() || p.TogglePlay() {
		t.Fatal("closed player must not play")
	}
	if _, err := p.Load("sine.wav", sineWAV(t, 440)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load after close err = %v, want ErrClosed", err)
	}
}
