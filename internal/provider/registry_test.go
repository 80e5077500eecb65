package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errVoicesDown = errors.New("voices down")

type stubSynth struct {
	voicesErr error
	id        core.ProviderID
	voices    []provider.Voice
}

func (s *stubSynth) ID() core.ProviderID { return s.id }

func (s *stubSynth) Voices(context.Context) ([]provider.Voice, error) {
	return s.voices, s.voicesErr
}

func (s *stubSynth) Synthesize(context.Context, string, string) (provider.Audio, error) {
	return provider.RawPCM([]byte{0, 0}), nil
}

func newRegistry(t *testing.T, synths ...provider.Synthesizer) *provider.Registry {
	t.Helper()

	log, err := logger.New(t.TempDir(), "registry-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return provider.NewRegistry(log, synths...)
}

func TestRegistry_GetAndIDs(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t,
		&stubSynth{id: core.ProviderGemini},
		&stubSynth{id: core.ProviderElevenLabs},
	)

	synth, err := registry.Get(core.ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, core.ProviderGemini, synth.ID())

	_, err = registry.Get("azure")
	require.ErrorIs(t, err, core.ErrInput)

	assert.Equal(t, []core.ProviderID{core.ProviderElevenLabs, core.ProviderGemini}, registry.IDs())
}

func TestRegistry_VoiceLabel(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, &stubSynth{id: core.ProviderGemini})

	assert.Equal(t, "Kore (Female)", registry.VoiceLabel(core.ProviderGemini, "Kore"))
	assert.Equal(t, "Custom", registry.VoiceLabel(core.ProviderGemini, "Custom"))
	assert.Equal(t, "Kore", registry.DefaultVoice(core.ProviderGemini))
	assert.True(t, registry.HasVoice(core.ProviderGemini, "Puck"))
	assert.False(t, registry.HasVoice(core.ProviderGemini, "Custom"))
}

func TestRegistry_RefreshVoices(t *testing.T) {
	t.Parallel()

	live := &stubSynth{
		id:     core.ProviderElevenLabs,
		voices: []provider.Voice{{ID: "x1", Name: "Xan (Warm)"}},
	}
	registry := newRegistry(t, live)

	voices, err := registry.RefreshVoices(context.Background(), core.ProviderElevenLabs)
	require.NoError(t, err)
	assert.Equal(t, live.voices, voices)
	assert.Equal(t, "Xan (Warm)", registry.VoiceLabel(core.ProviderElevenLabs, "x1"))

	live.voices = nil
	live.voicesErr = errVoicesDown

	voices, err = registry.RefreshVoices(context.Background(), core.ProviderElevenLabs)
	require.ErrorIs(t, err, errVoicesDown)
	assert.Equal(t, provider.Catalogue(core.ProviderElevenLabs), voices)
}
