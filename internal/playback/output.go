package playback

import "io"

// Format is the PCM layout an Output consumes: signed 16-bit little-endian,
// interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// Voice is one playing stream.
type Voice interface {
	Play()
	IsPlaying() bool
	Close() error
}

// Output opens voices on an audio device.
type Output interface {
	Format() Format
	Open(pcm io.Reader) (Voice, error)
}
