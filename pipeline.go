package aura

import (
	"context"
	"errors"
	"sync"

	"github.com/cbegin/musicaura-go/internal/analysis"
	intaudio "github.com/cbegin/musicaura-go/internal/audio"
)

var (
	// ErrPipelineAttached is returned when a second analysis pipeline is
	// attached to the same Player.
	ErrPipelineAttached = errors.New("aura: analysis pipeline already attached")
	// ErrNoPipeline is returned by WaitReady before the first TogglePlay.
	ErrNoPipeline     = errors.New("aura: analysis pipeline not attached")
	ErrPipelineClosed = errors.New("aura: analysis pipeline closed")
)

// Pipeline routes the decoded track through the analyzer on its way to the
// output. A Player owns at most one for its lifetime; loading a new track
// re-routes the same pipeline rather than building another.
type Pipeline struct {
	analyzer *analysis.Analyzer

	mu     sync.Mutex
	source *intaudio.PCMSource
	closed bool
	done   chan struct{}
}

func newPipeline(sampleRate int, cfg analysis.Config) (*Pipeline, error) {
	a, err := analysis.New(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{analyzer: a, done: make(chan struct{})}, nil
}

// connect taps src and aligns the analyzer to its cursor. The previous
// source, if any, is released.
func (pl *Pipeline) connect(src *intaudio.PCMSource) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed {
		return
	}
	if pl.source != nil && pl.source != src {
		pl.source.Attach(nil, nil)
	}
	pl.source = src
	if src != nil {
		src.Attach(pl.analyzer.Tap, pl.analyzer.Seek)
	}
}

// Ready is closed once the first buffer of audio has flowed through the
// analyzer. Frames drawn before that would only ever show silence.
func (pl *Pipeline) Ready() <-chan struct{} { return pl.analyzer.Ready() }

// Analyzer exposes the analysis node for callers that want raw spectra.
func (pl *Pipeline) Analyzer() *analysis.Analyzer { return pl.analyzer }

// Closed reports whether Close has run.
func (pl *Pipeline) Closed() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.closed
}

func (pl *Pipeline) spectrum(dst []uint8, playbackPos int64) {
	pl.mu.Lock()
	closed := pl.closed
	pl.mu.Unlock()
	if closed {
		clear(dst)
		return
	}
	pl.analyzer.ByteFrequencyData(dst, playbackPos)
}

// Close detaches the tap from the current source. It is safe to call more
// than once.
func (pl *Pipeline) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed {
		return nil
	}
	pl.closed = true
	if pl.source != nil {
		pl.source.Attach(nil, nil)
		pl.source = nil
	}
	close(pl.done)
	return nil
}

// wait blocks until the pipeline is ready, closed or ctx is done.
func (pl *Pipeline) wait(ctx context.Context) error {
	if pl.Closed() {
		return ErrPipelineClosed
	}
	select {
	case <-pl.Ready():
		return nil
	case <-pl.done:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
