// Package audio provides the decoded sample buffer and the codecs that move audio
// between provider output, the durable WAV container and the playback engine.
package audio

import (
	"errors"
	"fmt"

	"github.com/book-expert/audio-bible/internal/core"
)

// Defaults for raw PCM produced by the TTS providers.
const (
	DEFAULT_SAMPLE_RATE = 24000
	DEFAULT_CHANNELS    = 1
)

// Constants for the persisted sample format.
const (
	BIT_DEPTH_8  = 8
	BIT_DEPTH_16 = 16
	BIT_DEPTH_24 = 24
	BIT_DEPTH_32 = 32

	bytesPerSample = BIT_DEPTH_16 / 8
)

// Constants for buffer validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
)

// Scaling factors between the signed 16-bit domain and normalized floats.
const (
	negativeScale = 32768.0
	positiveScale = 32767.0
)

// Constants for error message formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_CHANNELS_RANGE    = "%w: channels must be between 1 and %d, got %d"
	ERR_FMT_RAGGED_CHANNELS   = "%w: channel %d has %d frames, expected %d"
)

// ErrInvalidBuffer is returned when a buffer's shape is inconsistent.
var ErrInvalidBuffer = errors.New("invalid audio buffer")

// Buffer is a decoded multi-channel float sample matrix.
// Channels[c][i] is frame i of channel c, normalized to [-1, 1].
//
// A Buffer is owned by exactly one component at a time; it is handed off from
// decoder to encoder or from loader to playback and never mutated concurrently.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NewBuffer allocates a zeroed buffer with the given shape.
func NewBuffer(channels, frames, sampleRate int) Buffer {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}

	return Buffer{Channels: data, SampleRate: sampleRate}
}

// NumChannels returns the channel count.
func (b Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of frames per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.SampleRate)
}

// Validate checks the sample rate, channel count and that every channel has
// the same number of frames.
func (b Buffer) Validate() error {
	err := validateFormat(b.SampleRate, len(b.Channels))
	if err != nil {
		return err
	}

	frames := b.Frames()
	for c, data := range b.Channels {
		if len(data) != frames {
			return fmt.Errorf(ERR_FMT_RAGGED_CHANNELS, ErrInvalidBuffer, c, len(data), frames)
		}
	}

	return nil
}

func validateFormat(sampleRate, channels int) error {
	if sampleRate <= 0 || sampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidBuffer, MAX_SAMPLE_RATE, sampleRate)
	}

	if channels <= 0 || channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidBuffer, MAX_CHANNELS, channels)
	}

	return nil
}

// decodeErr tags err as a decode failure while keeping the cause inspectable.
func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %w", core.ErrDecode, fmt.Errorf(format, args...))
}
