// Package hume is a placeholder for the Hume AI provider. It validates the
// key and then reports that synthesis is not available.
package hume

import (
	"context"
	"fmt"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
)

const (
	serviceName        = "Hume AI"
	errFmtNotAvailable = "%w: Hume AI TTS is not available in this build; choose another provider"
)

// Client implements provider.Synthesizer and always fails to synthesize.
type Client struct {
	apiKey provider.KeyFunc
}

// NewClient creates the Hume placeholder.
func NewClient(apiKey provider.KeyFunc) *Client {
	return &Client{apiKey: apiKey}
}

// ID implements provider.Synthesizer.
func (c *Client) ID() core.ProviderID {
	return core.ProviderHume
}

// Voices returns the mock voice catalogue.
func (c *Client) Voices(_ context.Context) ([]provider.Voice, error) {
	return provider.Catalogue(core.ProviderHume), nil
}

// Synthesize requires a key and then reports the provider as unavailable.
func (c *Client) Synthesize(_ context.Context, _, _ string) (provider.Audio, error) {
	if c.apiKey() == "" {
		return provider.Audio{}, provider.MissingKeyError(serviceName)
	}

	return provider.Audio{}, fmt.Errorf(errFmtNotAvailable, core.ErrUpstream)
}
