package core

import "errors"

// Error kinds shared by every component. Concrete errors wrap one of these
// so callers can classify a failure with errors.Is.
var (
	// ErrInput marks malformed user input: an empty theme block, a reference
	// before a theme, a missing API key or an empty verse.
	ErrInput = errors.New("invalid input")
	// ErrUpstream marks a failure reported by the text source or a TTS provider.
	ErrUpstream = errors.New("upstream failure")
	// ErrDecode marks raw PCM or container bytes that could not be decoded.
	ErrDecode = errors.New("audio decode failed")
	// ErrStorage marks a cache or settings read/write failure.
	ErrStorage = errors.New("storage unavailable")
)
