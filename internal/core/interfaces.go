// Package core defines the shared interfaces and error taxonomy of the audio bible reader.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Passage is a single passage returned by a text source.
type Passage struct {
	Reference string
	Text      string
}

// TextSource fetches scripture passages for a reference query.
// Passages are returned in the order the source lists them.
type TextSource interface {
	FetchPassages(ctx context.Context, query, apiKey string) ([]Passage, error)
}

// ProviderID identifies a text-to-speech provider.
type ProviderID string

// Known providers.
const (
	ProviderGemini     ProviderID = "gemini"
	ProviderElevenLabs ProviderID = "elevenlabs"
	ProviderOpenAI     ProviderID = "openai"
	ProviderHume       ProviderID = "hume"
)
