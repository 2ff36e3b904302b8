// Package analysis implements the frequency analysis node that sits between
// the decoded track and the audio output.
//
// The analyzer keeps a mono ring buffer of what has been sent to the output
// device. Snapshots are aligned to the device's playback position, windowed
// with a Blackman window, transformed, smoothed over time and mapped onto
// unsigned bytes the way a browser AnalyserNode does.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-vecmath"
)

const (
	DefaultFFTSize     = 512
	DefaultSmoothing   = 0.7
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	minFFTSize = 32
	maxFFTSize = 32768
)

var (
	ErrFFTSize      = errors.New("analysis: fftSize must be a power of two in [32, 32768]")
	ErrSmoothing    = errors.New("analysis: smoothing must be in [0, 1]")
	ErrDecibelRange = errors.New("analysis: minDecibels must be below maxDecibels")
	ErrSampleRate   = errors.New("analysis: sampleRate must be positive")
)

type Config struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

func DefaultConfig() Config {
	return Config{
		FFTSize:     DefaultFFTSize,
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
	}
}

func (c Config) validate() error {
	if c.FFTSize < minFFTSize || c.FFTSize > maxFFTSize || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrFFTSize, c.FFTSize)
	}
	if c.Smoothing < 0 || c.Smoothing > 1 || math.IsNaN(c.Smoothing) {
		return fmt.Errorf("%w: %v", ErrSmoothing, c.Smoothing)
	}
	if !(c.MinDecibels < c.MaxDecibels) {
		return fmt.Errorf("%w: [%v, %v]", ErrDecibelRange, c.MinDecibels, c.MaxDecibels)
	}
	return nil
}

type Analyzer struct {
	cfg        Config
	sampleRate int

	// ring is written by Tap on the audio thread.
	mu          sync.Mutex
	ring        []float32
	writePos    int
	totalTapped int64 // absolute frame index of the next tapped sample
	filled      int   // frames tapped since the last Seek

	readyOnce sync.Once
	ready     chan struct{}

	// Snapshot state, owned by the caller of ByteFrequencyData.
	snapMu   sync.Mutex
	plan     *algofft.Plan[complex128]
	window   []float64
	scratch  []float32
	input    []complex128
	output   []complex128
	re, im   []float64
	mag      []float64
	smoothed []float64
}

func New(sampleRate int, cfg Config) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("analysis: fft plan: %w", err)
	}
	bins := cfg.FFTSize / 2
	return &Analyzer{
		cfg:        cfg,
		sampleRate: sampleRate,
		ring:       make([]float32, ringLen(cfg.FFTSize, sampleRate)),
		ready:      make(chan struct{}),
		plan:       plan,
		window:     window.Generate(window.TypeBlackman, cfg.FFTSize, window.WithPeriodic()),
		scratch:    make([]float32, cfg.FFTSize),
		input:      make([]complex128, cfg.FFTSize),
		output:     make([]complex128, cfg.FFTSize),
		re:         make([]float64, bins),
		im:         make([]float64, bins),
		mag:        make([]float64, bins),
		smoothed:   make([]float64, bins),
	}, nil
}

// ringLen holds about a second of audio so the device latency between tap
// and speaker never exceeds what we keep.
func ringLen(fftSize, sampleRate int) int {
	n := fftSize * 4
	for n < sampleRate {
		n <<= 1
	}
	return n
}

func (a *Analyzer) Config() Config         { return a.cfg }
func (a *Analyzer) SampleRate() int        { return a.sampleRate }
func (a *Analyzer) FrequencyBinCount() int { return a.cfg.FFTSize / 2 }

// Ready is closed once the first buffer has flowed through Tap.
func (a *Analyzer) Ready() <-chan struct{} { return a.ready }

// Tap is called from the audio thread with stereo interleaved samples.
// Keep it minimal: mix to mono and copy into the ring.
func (a *Analyzer) Tap(samples []float32) {
	a.mu.Lock()
	n := len(a.ring)
	for i := 0; i+1 < len(samples); i += 2 {
		a.ring[a.writePos] = (samples[i] + samples[i+1]) * 0.5
		a.writePos++
		if a.writePos == n {
			a.writePos = 0
		}
		a.totalTapped++
		a.filled++
	}
	a.mu.Unlock()
	a.readyOnce.Do(func() { close(a.ready) })
}

// Seek realigns the tap counter to frame, e.g. after the player seeks or a
// new track is bound. Buffered audio and smoothing history are dropped.
func (a *Analyzer) Seek(frame int64) {
	a.mu.Lock()
	clear(a.ring)
	a.writePos = 0
	a.totalTapped = frame
	a.filled = 0
	a.mu.Unlock()

	a.snapMu.Lock()
	clear(a.smoothed)
	a.snapMu.Unlock()
}

// snapshot copies the fftSize samples ending at playbackPos into a.scratch.
// It reports false when nothing has been tapped since the last Seek.
func (a *Analyzer) snapshot(playbackPos int64) bool {
	n := len(a.scratch)
	a.mu.Lock()
	defer a.mu.Unlock()
	ringN := len(a.ring)
	// The delay is how far ahead the tap is from the speaker output.
	delay := int(a.totalTapped - playbackPos)
	if delay < 0 {
		delay = 0
	}
	if delay > ringN-n {
		delay = ringN - n
	}
	start := (a.writePos - delay - n + ringN*2) % ringN
	for i := 0; i < n; i++ {
		a.scratch[i] = a.ring[(start+i)%ringN]
	}
	return a.filled > 0
}

// ByteFrequencyData fills dst with the current magnitude of each bin mapped
// onto [0,255]. Entries beyond FrequencyBinCount are left untouched.
func (a *Analyzer) ByteFrequencyData(dst []uint8, playbackPos int64) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()

	if !a.snapshot(playbackPos) {
		clear(a.scratch)
	}
	a.updateSpectrum()

	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	bins := min(len(dst), len(a.smoothed))
	for k := 0; k < bins; k++ {
		db := -math.Inf(1)
		if v := a.smoothed[k]; v > 0 {
			db = 20 * math.Log10(v)
		}
		scaled := 255 * (db - a.cfg.MinDecibels) / span
		switch {
		case scaled <= 0 || math.IsNaN(scaled):
			dst[k] = 0
		case scaled >= 255:
			dst[k] = 255
		default:
			dst[k] = uint8(scaled)
		}
	}
}

// FloatFrequencyData fills dst with the smoothed magnitude of each bin in
// dB. Call after ByteFrequencyData in the same frame to read the same snapshot.
func (a *Analyzer) FloatFrequencyData(dst []float64) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	bins := min(len(dst), len(a.smoothed))
	for k := 0; k < bins; k++ {
		if v := a.smoothed[k]; v > 0 {
			dst[k] = 20 * math.Log10(v)
		} else {
			dst[k] = math.Inf(-1)
		}
	}
}

func (a *Analyzer) updateSpectrum() {
	n := a.cfg.FFTSize
	for i := 0; i < n; i++ {
		a.input[i] = complex(float64(a.scratch[i])*a.window[i], 0)
	}
	if err := a.plan.Forward(a.output, a.input); err != nil {
		return
	}
	for k := range a.re {
		a.re[k] = real(a.output[k])
		a.im[k] = imag(a.output[k])
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	tau := a.cfg.Smoothing
	inv := 1 / float64(n)
	for k, m := range a.mag {
		cur := m * inv
		if math.IsNaN(cur) || math.IsInf(cur, 0) {
			cur = 0
		}
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*cur
	}
}
