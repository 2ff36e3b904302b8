package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// pcm is a decoded, interleaved buffer in [-1,1] at its native rate.
type pcm struct {
	samples  []float32
	channels int
	rate     int
}

const wavFormatIEEEFloat = 3

func decodePCM(format Format, data []byte) (pcm, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(data)
	case FormatAIFF:
		return decodeAIFF(data)
	case FormatMP3:
		return decodeMP3(data)
	case FormatVorbis:
		return decodeVorbis(data)
	default:
		return pcm{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatLabel(format))
	}
}

func formatLabel(f Format) string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}

func decodeWAV(data []byte) (pcm, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return pcm{}, fmt.Errorf("%w: wav header", ErrInvalidFile)
	}
	if d.WavAudioFormat == wavFormatIEEEFloat {
		return pcm{}, fmt.Errorf("%w: floating point wav", ErrUnsupportedFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		return pcm{}, fmt.Errorf("decode: wav: %w", err)
	}
	format := d.Format()
	bitDepth := int(d.SampleBitDepth())
	if format == nil || format.NumChannels <= 0 || bitDepth == 0 {
		return pcm{}, fmt.Errorf("%w: wav format", ErrInvalidFile)
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(d.PCMLen()) / bytesPerSample
	buf := &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	n, err := d.PCMBuffer(buf)
	if err != nil {
		return pcm{}, fmt.Errorf("decode: wav: %w", err)
	}
	samples, err := intsToFloat(buf.Data[:n], bitDepth, false)
	if err != nil {
		return pcm{}, err
	}
	return pcm{samples: samples, channels: format.NumChannels, rate: format.SampleRate}, nil
}

func decodeAIFF(data []byte) (pcm, error) {
	d := aiff.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return pcm{}, fmt.Errorf("%w: aiff header", ErrInvalidFile)
	}
	d.ReadInfo()
	format := d.Format()
	if format == nil || format.NumChannels <= 0 {
		return pcm{}, fmt.Errorf("%w: aiff format", ErrInvalidFile)
	}
	bitDepth := int(d.BitDepth)

	buf := &goaudio.IntBuffer{Format: format, Data: make([]int, 4096)}
	var samples []float32
	for {
		n, err := d.PCMBuffer(buf)
		if n > 0 {
			chunk, cerr := intsToFloat(buf.Data[:n], bitDepth, true)
			if cerr != nil {
				return pcm{}, cerr
			}
			samples = append(samples, chunk...)
		}
		if err != nil && err != io.EOF {
			return pcm{}, fmt.Errorf("decode: aiff: %w", err)
		}
		if n == 0 || err == io.EOF {
			break
		}
	}
	return pcm{samples: samples, channels: format.NumChannels, rate: format.SampleRate}, nil
}

func decodeMP3(data []byte) (pcm, error) {
	d, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return pcm{}, fmt.Errorf("decode: mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return pcm{}, fmt.Errorf("decode: mp3: %w", err)
	}
	// go-mp3 always produces 16-bit little-endian stereo.
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	return pcm{samples: samples, channels: 2, rate: d.SampleRate()}, nil
}

func decodeVorbis(data []byte) (pcm, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return pcm{}, fmt.Errorf("decode: vorbis: %w", err)
	}
	return pcm{samples: samples, channels: format.Channels, rate: format.SampleRate}, nil
}

// intsToFloat normalizes integer PCM by bit depth. WAV stores 8-bit samples
// unsigned, AIFF stores them signed.
func intsToFloat(data []int, bitDepth int, signed8 bool) ([]float32, error) {
	var scale float32
	offset := 0
	switch bitDepth {
	case 8:
		scale = 128.0
		if !signed8 {
			offset = 128
		}
	case 16:
		scale = 32768.0
	case 24:
		scale = 8388608.0
	case 32:
		scale = 2147483648.0
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDepth, bitDepth)
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v-offset) / scale
	}
	return out, nil
}

// toStereo folds any channel layout into interleaved stereo. Mono is
// duplicated; wider layouts average even channels left and odd right.
func toStereo(in []float32, channels int) []float32 {
	if channels == 2 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames*2)
	if channels == 1 {
		for f := 0; f < frames; f++ {
			out[f*2] = in[f]
			out[f*2+1] = in[f]
		}
		return out
	}
	left := float32(0)
	right := float32(0)
	for c := 0; c < channels; c++ {
		if c%2 == 0 {
			left++
		} else {
			right++
		}
	}
	for f := 0; f < frames; f++ {
		var l, r float32
		base := f * channels
		for c := 0; c < channels; c++ {
			if c%2 == 0 {
				l += in[base+c]
			} else {
				r += in[base+c]
			}
		}
		out[f*2] = l / left
		out[f*2+1] = r / right
	}
	return out
}
