package hume_test

import (
	"context"
	"testing"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/audio-bible/internal/provider/hume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	_, err := hume.NewClient(provider.StaticKey("")).Synthesize(context.Background(), "text", "mock-hume-1")
	require.ErrorIs(t, err, core.ErrInput)
	assert.Contains(t, err.Error(), "Hume AI API key is required")

	_, err = hume.NewClient(provider.StaticKey("h-key")).Synthesize(context.Background(), "text", "mock-hume-1")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "not available")
}

func TestVoices(t *testing.T) {
	t.Parallel()

	voices, err := hume.NewClient(provider.StaticKey("")).Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "mock-hume-1", voices[0].ID)
}
