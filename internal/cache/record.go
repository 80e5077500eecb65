// Package cache persists verse text and generated audio keyed by verse reference.
//
// Two durable backends are provided: SQLiteStore, an on-device database used
// by default, and DocumentStore, which keeps one document per verse in any
// core.ObjectStore such as the NATS JetStream object store. Both replace a
// record wholesale on Put, so audio bytes and their duration are always
// written together.
package cache

import (
	"context"
	"errors"

	"github.com/book-expert/audio-bible/internal/core"
)

// ErrNotFound is returned by Get when no record exists for the reference.
var ErrNotFound = errors.New("verse not cached")

// Error message formats.
const (
	errFmtPut         = "%w: put '%s': %w"
	errFmtGet         = "%w: get '%s': %w"
	errFmtNotFound    = "%w: '%s'"
	errFmtEmptyRefPut = "%w: reference cannot be empty"
)

// AudioRecord is the generated audio for a verse.
// DurationSeconds is the decoded duration of EncodedBytes.
type AudioRecord struct {
	EncodedBytes    []byte          `json:"encodedBytes"`
	ProviderID      core.ProviderID `json:"providerId"`
	VoiceLabel      string          `json:"voiceLabel"`
	DurationSeconds float64         `json:"durationSeconds"`
}

// VerseRecord is the cached text of a verse plus its optional audio.
type VerseRecord struct {
	Audio     *AudioRecord `json:"audio,omitempty"`
	Reference string       `json:"reference"`
	Text      string       `json:"text"`
}

// HasAudio reports whether the record carries encoded audio.
func (v VerseRecord) HasAudio() bool {
	return v.Audio != nil && len(v.Audio.EncodedBytes) > 0
}

// Store is the verse cache contract shared by all backends.
type Store interface {
	Put(ctx context.Context, verse VerseRecord) error
	Get(ctx context.Context, reference string) (VerseRecord, error)
}
