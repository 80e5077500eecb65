// Package provider defines the text-to-speech adapter contract and the
// registry that maps provider IDs to implementations.
package provider

import (
	"context"
	"fmt"

	"github.com/book-expert/audio-bible/internal/core"
)

// Kind tells the pipeline how to decode Audio.Data.
type Kind int

// Audio payload kinds.
const (
	// AUDIO_RAW_PCM is headerless little-endian int16 PCM.
	AUDIO_RAW_PCM Kind = iota
	// AUDIO_CONTAINER is a self-describing file such as MP3 or WAV.
	AUDIO_CONTAINER
)

// Raw PCM format produced by the speech APIs that return headerless audio.
const (
	PCM_SAMPLE_RATE = 24000
	PCM_CHANNELS    = 1
)

// Error message formats shared by provider implementations.
const (
	ErrFmtMissingKey   = "%w: %s API key is required. Please add it in the settings."
	ErrFmtEmptyText    = "%w: cannot read an empty verse"
	ErrFmtAPIError     = "%w: %s API error: %s"
	ErrFmtRequest      = "%w: failed to send request to %s: %w"
	ErrFmtReadResponse = "%w: failed to read %s response: %w"
)

// Audio is the undecoded output of one synthesis call. SampleRate and
// Channels describe AUDIO_RAW_PCM payloads and are ignored for containers.
type Audio struct {
	Data       []byte
	Kind       Kind
	SampleRate int
	Channels   int
}

// RawPCM wraps headerless 24 kHz mono PCM.
func RawPCM(data []byte) Audio {
	return Audio{Data: data, Kind: AUDIO_RAW_PCM, SampleRate: PCM_SAMPLE_RATE, Channels: PCM_CHANNELS}
}

// Container wraps self-describing audio bytes.
func Container(data []byte) Audio {
	return Audio{Data: data, Kind: AUDIO_CONTAINER}
}

// Voice is a selectable voice. Name is the label stored with generated audio.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Synthesizer converts text to speech for one provider.
type Synthesizer interface {
	ID() core.ProviderID
	Voices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// KeyFunc returns the current API key for a provider. Keys may change while
// the application runs, so providers read them per call.
type KeyFunc func() string

// StaticKey returns a KeyFunc that always yields key.
func StaticKey(key string) KeyFunc {
	return func() string { return key }
}

// MissingKeyError reports an absent API key for the named service.
func MissingKeyError(service string) error {
	return fmt.Errorf(ErrFmtMissingKey, core.ErrInput, service)
}
