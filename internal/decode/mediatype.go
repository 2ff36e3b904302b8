package decode

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatAIFF    Format = "aiff"
	FormatMP3     Format = "mp3"
	FormatVorbis  Format = "ogg vorbis"
	FormatFLAC    Format = "flac"
)

// extension → media type for the formats we know about. The mime package's
// builtin table carries no audio types, so system tables are only a fallback.
var audioExtensions = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".aif":  "audio/aiff",
	".aiff": "audio/aiff",
	".aifc": "audio/aiff",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
}

// MediaType returns the media type implied by a file name, or "" when the
// extension is unknown.
func MediaType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := audioExtensions[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// IsAudio reports whether an input should be treated as audio. A known
// extension decides; otherwise the leading bytes are sniffed.
func IsAudio(name string, head []byte) bool {
	if t := MediaType(name); t != "" {
		return strings.HasPrefix(t, "audio/")
	}
	return Sniff(head) != FormatUnknown
}

// Sniff identifies a container by its magic bytes.
func Sniff(head []byte) Format {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("FORM")) &&
		(bytes.Equal(head[8:12], []byte("AIFF")) || bytes.Equal(head[8:12], []byte("AIFC"))):
		return FormatAIFF
	case len(head) >= 4 && bytes.Equal(head[:4], []byte("OggS")):
		return FormatVorbis
	case len(head) >= 4 && bytes.Equal(head[:4], []byte("fLaC")):
		return FormatFLAC
	case len(head) >= 3 && bytes.Equal(head[:3], []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}
