package decode

import "errors"

var (
	ErrNotAudio          = errors.New("decode: not an audio file")
	ErrUnsupportedFormat = errors.New("decode: unsupported audio format")
	ErrInvalidFile       = errors.New("decode: invalid or corrupt audio file")
	ErrUnsupportedDepth  = errors.New("decode: unsupported bit depth")
	ErrEmptyTrack        = errors.New("decode: track contains no samples")
)
