// Package decode turns user-supplied audio files into stereo float32 tracks
// at the output sample rate.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"golang.org/x/sync/errgroup"
)

// sniffLen is how much of a file IsAudio needs to look at.
const sniffLen = 12

// Track is a fully decoded audio file.
type Track struct {
	Name       string
	Title      string
	Artist     string
	Format     Format
	SampleRate int
	// Samples is interleaved stereo in [-1,1].
	Samples []float32
}

// Frames returns the number of stereo frames.
func (t *Track) Frames() int64 {
	return int64(len(t.Samples) / 2)
}

// Duration returns the track length in seconds.
func (t *Track) Duration() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(t.Frames()) / float64(t.SampleRate)
}

// DisplayName prefers tag metadata and falls back to the file name.
func (t *Track) DisplayName() string {
	switch {
	case t.Title != "" && t.Artist != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.Name
	}
}

// Head returns the prefix of data used for media type sniffing.
func Head(data []byte) []byte {
	return data[:min(len(data), sniffLen)]
}

// Decode decodes data into a Track resampled to sampleRate. Inputs that are
// not audio return ErrNotAudio.
func Decode(name string, data []byte, sampleRate int) (*Track, error) {
	if sampleRate <= 0 {
		return nil, errors.New("decode: sampleRate must be positive")
	}
	if !IsAudio(name, Head(data)) {
		return nil, ErrNotAudio
	}
	format := Sniff(Head(data))
	if format == FormatUnknown {
		format = formatFromExt(name)
	}

	t := &Track{
		Name:       filepath.Base(name),
		Format:     format,
		SampleRate: sampleRate,
	}

	var g errgroup.Group
	g.Go(func() error {
		p, err := decodePCM(format, data)
		if err != nil {
			return err
		}
		if p.channels <= 0 || len(p.samples) < p.channels {
			return ErrEmptyTrack
		}
		samples, err := resample(toStereo(p.samples, p.channels), 2, p.rate, sampleRate)
		if err != nil {
			return err
		}
		t.Samples = samples
		slog.Debug("decoded track",
			"name", t.Name,
			"format", string(format),
			"channels", p.channels,
			"sourceRate", p.rate,
			"sampleRate", sampleRate,
			"frames", t.Frames(),
		)
		return nil
	})
	g.Go(func() error {
		t.Title, t.Artist = readTags(data)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Name, err)
	}
	return t, nil
}

// readTags returns title and artist when the file carries readable tags.
func readTags(data []byte) (title, artist string) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(m.Title()), strings.TrimSpace(m.Artist())
}

func formatFromExt(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".aif", ".aiff", ".aifc":
		return FormatAIFF
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga":
		return FormatVorbis
	case ".flac":
		return FormatFLAC
	}
	return FormatUnknown
}
