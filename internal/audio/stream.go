package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// bytesPerFrame is one stereo frame in F32LE.
const bytesPerFrame = 8

var ErrNotSeekable = errors.New("audio: source is not seekable")

type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// SeekableSource is a SampleSource with a repositionable read cursor.
// Positions are stereo frames.
type SeekableSource interface {
	SampleSource
	SeekFrame(frame int64) int64
	Frame() int64
	Frames() int64
}

type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return 0, io.EOF
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * bytesPerFrame
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

// Seek moves the source cursor. Offsets are bytes of F32LE stereo output,
// which is what the ebiten player hands us from SetPosition.
func (r *StreamReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ss, ok := r.source.(SeekableSource)
	if !ok {
		return 0, ErrNotSeekable
	}
	var frame int64
	switch whence {
	case io.SeekStart:
		frame = offset / bytesPerFrame
	case io.SeekCurrent:
		frame = ss.Frame() + offset/bytesPerFrame
	case io.SeekEnd:
		frame = ss.Frames() + offset/bytesPerFrame
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if frame < 0 {
		return 0, fmt.Errorf("audio: negative position %d", frame)
	}
	return ss.SeekFrame(frame) * bytesPerFrame, nil
}

func (r *StreamReader) Close() error { return nil }

type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     atomic.Pointer[ebitaudio.Context]
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext.Store(ebitaudio.NewContext(sampleRate))
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext.Load(), nil
}

// ContextReady reports whether the platform has started the shared audio
// context. Browsers keep it suspended until a user gesture. It is false
// before the first player is created.
func ContextReady() bool {
	ctx := audioContext.Load()
	return ctx != nil && ctx.IsReady()
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

// SetPosition seeks the underlying source and drops buffered output.
func (p *Player) SetPosition(pos time.Duration) error {
	return p.player.SetPosition(pos)
}

func (p *Player) SetVolume(volume float64) { p.player.SetVolume(volume) }

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
