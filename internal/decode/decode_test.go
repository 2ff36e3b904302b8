package decode

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes 16-bit PCM with go-audio and returns the file bytes.
func writeWAV(t *testing.T, sampleRate, channels int, data []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
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

func TestIsAudio(t *testing.T) {
	riff := []byte("RIFF\x00\x00\x00\x00WAVE")
	cases := []struct {
		name string
		head []byte
		want bool
	}{
		{"song.mp3", []byte("garbage"), true},
		{"Song.WAV", nil, true},
		{"track.ogg", nil, true},
		{"notes.txt", []byte("hello"), false},
		{"cover.png", []byte("\x89PNG\r\n\x1a\n"), false},
		{"blob", riff, true},
		{"blob", []byte("OggS\x00\x02"), true},
		{"blob", []byte("ID3\x04"), true},
		{"blob", []byte("hello world"), false},
		{"", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAudio(tc.name, tc.head); got != tc.want {
				t.Fatalf("IsAudio(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		head []byte
		want Format
	}{
		{[]byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{[]byte("FORM\x00\x00\x00\x00AIFF"), FormatAIFF},
		{[]byte("FORM\x00\x00\x00\x00AIFC"), FormatAIFF},
		{[]byte("OggS"), FormatVorbis},
		{[]byte("fLaC"), FormatFLAC},
		{[]byte{0xFF, 0xFB, 0x90}, FormatMP3},
		{[]byte("RIFF\x00\x00\x00\x00AVI "), FormatUnknown},
		{nil, FormatUnknown},
	}
	for _, tc := range cases {
		if got := Sniff(tc.head); got != tc.want {
			t.Fatalf("Sniff(%q) = %q, want %q", tc.head, got, tc.want)
		}
	}
}

func TestDecodeMonoWAVToStereo(t *testing.T) {
	raw := writeWAV(t, 8000, 1, []int{0, 16384, -16384, 32767})
	tr, err := Decode("clip.wav", raw, 8000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Format != FormatWAV {
		t.Fatalf("format = %q, want wav", tr.Format)
	}
	if tr.Frames() != 4 {
		t.Fatalf("frames = %d, want 4", tr.Frames())
	}
	want := []float32{0, 0, 0.5, 0.5, -0.5, -0.5}
	for i, w := range want {
		if tr.Samples[i] != w {
			t.Fatalf("sample %d = %v, want %v", i, tr.Samples[i], w)
		}
	}
	if got := tr.Duration(); got != 4.0/8000 {
		t.Fatalf("duration = %v, want %v", got, 4.0/8000)
	}
	if tr.DisplayName() != "clip.wav" {
		t.Fatalf("display name = %q", tr.DisplayName())
	}
}

func TestDecodeResamplesToOutputRate(t *testing.T) {
	data := make([]int, 800*2)
	for i := range data {
		data[i] = 8000
	}
	raw := writeWAV(t, 8000, 2, data)
	tr, err := Decode("clip.wav", raw, 16000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Frames() != 1600 {
		t.Fatalf("frames = %d, want 1600", tr.Frames())
	}
	for i, s := range tr.Samples {
		if math.Abs(float64(s)-8000.0/32768.0) > 1e-3 {
			t.Fatalf("sample %d = %v, want constant %v", i, s, 8000.0/32768.0)
		}
	}
}

func TestDecodeRejectsNonAudio(t *testing.T) {
	_, err := Decode("readme.txt", []byte("just text"), 48000)
	if !errors.Is(err, ErrNotAudio) {
		t.Fatalf("err = %v, want ErrNotAudio", err)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := Decode("song.flac", []byte("fLaC\x00\x00\x00\x22"), 48000)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeCorruptWAV(t *testing.T) {
	_, err := Decode("broken.wav", []byte("RIFF\x00\x00"), 48000)
	if err == nil {
		t.Fatal("expected error for truncated wav")
	}
}

func TestIntsToFloat(t *testing.T) {
	got, err := intsToFloat([]int{0, 128, 255}, 8, false)
	if err != nil {
		t.Fatalf("intsToFloat: %v", err)
	}
	want := []float32{-1, 0, 127.0 / 128.0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("8-bit[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if _, err := intsToFloat([]int{1}, 12, false); !errors.Is(err, ErrUnsupportedDepth) {
		t.Fatalf("err = %v, want ErrUnsupportedDepth", err)
	}
}

func TestToStereoMultichannel(t *testing.T) {
	in := []float32{1, 0, 0.5, 0.5} // one quad frame
	out := toStereo(in, 4)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != 0.75 || out[1] != 0.25 {
		t.Fatalf("out = %v, want [0.75 0.25]", out)
	}
}

func TestResampleIdentityAndLength(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	got, err := resample(in, 2, 44100, 44100)
	if err != nil || &got[0] != &in[0] {
		t.Fatalf("same-rate resample should return the input, err = %v", err)
	}
	down, err := resample(make([]float32, 96000*2), 2, 96000, 48000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(down) != 48000*2 {
		t.Fatalf("downsampled len = %d, want %d", len(down), 48000*2)
	}
	up, err := resample(make([]float32, 44100), 1, 44100, 48000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(up) != 48000 {
		t.Fatalf("upsampled len = %d, want 48000", len(up))
	}
	if _, err := resample(in, 2, 0, 48000); err == nil {
		t.Fatal("expected error for zero source rate")
	}
}

func sineAt(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}
	return out
}

// interiorRMS skips the edges, where held samples step into the filter.
func interiorRMS(x []float32, edge int) float64 {
	var sum float64
	body := x[edge : len(x)-edge]
	for _, v := range body {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(body)))
}

func TestResampleFiltersAboveOutputNyquist(t *testing.T) {
	tests := []struct {
		name   string
		freq   float64
		minRMS float64
		maxRMS float64
	}{
		{name: "passband 1kHz", freq: 1000, minRMS: 0.69, maxRMS: 0.72},
		{name: "30kHz folds to 18kHz", freq: 30000, minRMS: 0, maxRMS: 0.01},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := resample(sineAt(tc.freq, 96000, 96000), 1, 96000, 48000)
			if err != nil {
				t.Fatalf("resample: %v", err)
			}
			got := interiorRMS(out, 500)
			if got < tc.minRMS || got > tc.maxRMS {
				t.Fatalf("rms = %v, want in [%v, %v]", got, tc.minRMS, tc.maxRMS)
			}
		})
	}
}
