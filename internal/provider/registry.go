package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/logger"
)

const errFmtUnknownProvider = "%w: unsupported TTS provider '%s'"

// Registry maps provider IDs to synthesizers and remembers the last voice
// list seen for each.
type Registry struct {
	providers map[core.ProviderID]Synthesizer
	voices    map[core.ProviderID][]Voice
	log       *logger.Logger
	mu        sync.RWMutex
}

// NewRegistry registers synths by their ID.
func NewRegistry(log *logger.Logger, synths ...Synthesizer) *Registry {
	registry := &Registry{
		providers: make(map[core.ProviderID]Synthesizer, len(synths)),
		voices:    make(map[core.ProviderID][]Voice, len(synths)),
		log:       log,
	}

	for _, synth := range synths {
		registry.providers[synth.ID()] = synth
		registry.voices[synth.ID()] = Catalogue(synth.ID())
	}

	return registry
}

// Get returns the synthesizer for id.
func (r *Registry) Get(id core.ProviderID) (Synthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	synth, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf(errFmtUnknownProvider, core.ErrInput, id)
	}

	return synth, nil
}

// IDs lists registered providers in sorted order.
func (r *Registry) IDs() []core.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]core.ProviderID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Voices returns the cached voice list for id.
func (r *Registry) Voices(id core.ProviderID) []Voice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Voice(nil), r.voices[id]...)
}

// RefreshVoices asks the provider for its voices. On failure or an empty
// answer the built-in catalogue is kept and the error is returned.
func (r *Registry) RefreshVoices(ctx context.Context, id core.ProviderID) ([]Voice, error) {
	synth, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	voices, err := synth.Voices(ctx)
	if err != nil || len(voices) == 0 {
		voices = Catalogue(id)
	}

	r.mu.Lock()
	r.voices[id] = voices
	r.mu.Unlock()

	if err != nil {
		r.log.Warn("Failed to fetch %s voices, using default list: %v", id, err)

		return append([]Voice(nil), voices...), fmt.Errorf("refresh %s voices: %w", id, err)
	}

	return append([]Voice(nil), voices...), nil
}

// DefaultVoice returns the first known voice for id, or "" when none exist.
func (r *Registry) DefaultVoice(id core.ProviderID) string {
	voices := r.Voices(id)
	if len(voices) == 0 {
		return ""
	}

	return voices[0].ID
}

// HasVoice reports whether voiceID is in the known list for id.
func (r *Registry) HasVoice(id core.ProviderID, voiceID string) bool {
	for _, voice := range r.Voices(id) {
		if voice.ID == voiceID {
			return true
		}
	}

	return false
}

// VoiceLabel resolves a voice ID to its display name, falling back to the ID.
func (r *Registry) VoiceLabel(id core.ProviderID, voiceID string) string {
	for _, voice := range r.Voices(id) {
		if voice.ID == voiceID {
			return voice.Name
		}
	}

	return voiceID
}
