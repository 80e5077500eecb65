// Package app is the explicit application context: it owns the stores, the
// playback engine, the generation pipeline and the history recorder, and
// exposes the operations a presentation layer calls.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/audio-bible/internal/cache"
	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/history"
	"github.com/book-expert/audio-bible/internal/metrics"
	"github.com/book-expert/audio-bible/internal/passage"
	"github.com/book-expert/audio-bible/internal/pipeline"
	"github.com/book-expert/audio-bible/internal/playback"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/audio-bible/internal/settings"
	"github.com/book-expert/logger"
)

// ErrStaleFetch is returned when a newer Fetch started before this one finished.
var ErrStaleFetch = errors.New("fetch superseded by a newer request")

// Error and log formats.
const (
	errFmtFetchGroup   = "fetch '%s': %w"
	errFmtStale        = "%w: '%s'"
	errFmtNotLoaded    = "%w: verse '%s' is not loaded"
	errFmtUnknownVoice = "%w: voice '%s' is not offered by %s"
	logFmtFetched      = "Fetched %d verse(s) in %d group(s)"
	logFmtRestored     = "Restored %d verse(s) in %d group(s)"
	logFmtCacheRead    = "Cache read failed for '%s': %v"
	logFmtCacheWrite   = "Cache write failed for '%s': %v"
	logFmtSettings     = "Failed to persist settings: %v"
	logFmtVoiceRefresh = "Voice list refresh for %s failed: %v"
	logFmtBadSetting   = "Ignoring stored playback setting: %v"
	logFmtStaleGroups  = "None of the %d stored group(s) are cached any more; forgetting them"
)

// ThemedVerses is one fetched group with its verse records.
type ThemedVerses struct {
	Theme  string
	Verses []cache.VerseRecord
}

// Deps are the collaborators an App coordinates. All are required except Metrics.
type Deps struct {
	Store    cache.Store
	Settings *settings.Store
	Text     core.TextSource
	Registry *provider.Registry
	Pipeline *pipeline.Pipeline
	Engine   *playback.Engine
	Recorder *history.Recorder
	Metrics  *metrics.Metrics
	Log      *logger.Logger
}

// App serialises state changes behind one mutex. Network and storage calls
// run outside it.
type App struct {
	deps     Deps
	groups   []ThemedVerses
	themes   map[string]string
	prefs    settings.Preferences
	fetchSeq uint64
	mu       sync.Mutex
}

// New builds the context. Stored preferences win over fallback; stored
// playback settings the engine rejects are logged and skipped. The engine
// listener must not call back into the App.
func New(deps Deps, fallback settings.Preferences) *App {
	prefs := deps.Settings.Preferences()
	if prefs.Provider == "" {
		prefs.Provider = fallback.Provider
		prefs.Voice = fallback.Voice
	}

	if prefs.Voice == "" {
		prefs.Voice = deps.Registry.DefaultVoice(prefs.Provider)
	}

	app := &App{deps: deps, themes: map[string]string{}, prefs: prefs}

	if prefs.Rate != 0 {
		err := deps.Engine.SetRate(prefs.Rate)
		if err != nil {
			deps.Log.Warn(logFmtBadSetting, err)
		}
	}

	if prefs.PitchCents != 0 {
		err := deps.Engine.SetPitch(prefs.PitchCents)
		if err != nil {
			deps.Log.Warn(logFmtBadSetting, err)
		}
	}

	return app
}

// Fetch parses input, fetches every group from the text source and caches
// the verse text. Cached audio for a verse survives the text refresh.
// Only the most recent Fetch may update the loaded groups.
func (a *App) Fetch(ctx context.Context, input string) ([]ThemedVerses, error) {
	a.mu.Lock()
	a.fetchSeq++
	token := a.fetchSeq
	a.mu.Unlock()

	groups, err := passage.Parse(input)
	if err != nil {
		return nil, err
	}

	apiKey := a.deps.Settings.ResolveAPIKey(settings.KEY_ESV)
	themed := make([]ThemedVerses, 0, len(groups))
	fetched := make([]passage.Group, 0, len(groups))

	for _, group := range groups {
		passages, fetchErr := a.deps.Text.FetchPassages(ctx, group.Query(), apiKey)
		if fetchErr != nil {
			return nil, fmt.Errorf(errFmtFetchGroup, group.Theme, fetchErr)
		}

		verses := make([]cache.VerseRecord, 0, len(passages))
		refs := make([]string, 0, len(passages))

		for _, p := range passages {
			verses = append(verses, a.upsertText(ctx, p))
			refs = append(refs, p.Reference)
		}

		themed = append(themed, ThemedVerses{Theme: group.Theme, Verses: verses})
		fetched = append(fetched, passage.Group{Theme: group.Theme, References: refs})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token != a.fetchSeq {
		return nil, fmt.Errorf(errFmtStale, ErrStaleFetch, strings.TrimSpace(input))
	}

	a.setGroupsLocked(themed)

	err = a.deps.Settings.SetLastSession(input, fetched)
	if err != nil {
		a.deps.Log.Warn(logFmtSettings, err)
	}

	a.deps.Log.Info(logFmtFetched, countVerses(themed), len(themed))

	return cloneGroups(themed), nil
}

// Restore reloads the last fetched groups from the cache without the
// network. References no longer cached are skipped; when nothing is left the
// stored groups are forgotten.
func (a *App) Restore(ctx context.Context) []ThemedVerses {
	stored := a.deps.Settings.LastGroups()
	themed := make([]ThemedVerses, 0, len(stored))

	for _, group := range stored {
		verses := make([]cache.VerseRecord, 0, len(group.References))

		for _, ref := range group.References {
			record, err := a.deps.Store.Get(ctx, ref)
			if err != nil {
				a.cacheReadFailed(ref, err)

				continue
			}

			a.deps.Metrics.CacheOperation(metrics.OP_GET, metrics.RESULT_OK)
			verses = append(verses, record)
		}

		if len(verses) > 0 {
			themed = append(themed, ThemedVerses{Theme: group.Theme, Verses: verses})
		}
	}

	if len(stored) > 0 && len(themed) == 0 {
		a.deps.Log.Warn(logFmtStaleGroups, len(stored))

		err := a.deps.Settings.ClearLastGroups()
		if err != nil {
			a.deps.Log.Warn(logFmtSettings, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.setGroupsLocked(themed)
	a.deps.Log.Info(logFmtRestored, countVerses(themed), len(themed))

	return cloneGroups(themed)
}

// LastInput is the text of the most recent successful Fetch.
func (a *App) LastInput() string {
	return a.deps.Settings.LastInput()
}

// Groups returns the loaded groups.
func (a *App) Groups() []ThemedVerses {
	a.mu.Lock()
	defer a.mu.Unlock()

	return cloneGroups(a.groups)
}

// Generate synthesizes audio for a loaded verse with the selected provider and voice.
func (a *App) Generate(ctx context.Context, reference string) (cache.VerseRecord, error) {
	a.mu.Lock()
	verse, ok := a.findLocked(reference)
	req := a.requestLocked()
	a.mu.Unlock()

	if !ok {
		return cache.VerseRecord{}, fmt.Errorf(errFmtNotLoaded, core.ErrInput, reference)
	}

	record, err := a.deps.Pipeline.Generate(ctx, core.Passage{Reference: verse.Reference, Text: verse.Text}, req)
	if err != nil {
		return cache.VerseRecord{}, err
	}

	a.mu.Lock()
	a.attachLocked(record)
	a.mu.Unlock()

	return record, nil
}

// GenerateAll synthesizes every loaded verse that has no audio yet.
func (a *App) GenerateAll(ctx context.Context) []pipeline.Result {
	a.mu.Lock()
	req := a.requestLocked()

	var pending []core.Passage

	for _, group := range a.groups {
		for _, verse := range group.Verses {
			if !verse.HasAudio() {
				pending = append(pending, core.Passage{Reference: verse.Reference, Text: verse.Text})
			}
		}
	}
	a.mu.Unlock()

	results := a.deps.Pipeline.GenerateAll(ctx, pending, req)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, result := range results {
		if result.Err == nil {
			a.attachLocked(result.Record)
		}
	}

	return results
}

// TogglePlay plays reference, or stops it when it is already playing.
// Starting playback of a loaded verse records it in history under its theme.
func (a *App) TogglePlay(ctx context.Context, reference string) error {
	err := a.deps.Engine.Play(ctx, reference)
	if err != nil {
		return err
	}

	playing, ok := a.deps.Engine.State().(playback.Playing)
	if !ok || playing.Session.Reference != reference {
		return nil
	}

	theme, known := a.themeOf(reference)
	if known {
		a.deps.Recorder.Record(theme, reference)
	}

	return nil
}

// Seek restarts reference at fraction of its duration.
func (a *App) Seek(ctx context.Context, reference string, fraction float64) error {
	return a.deps.Engine.Seek(ctx, reference, fraction)
}

// Stop ends playback.
func (a *App) Stop() {
	a.deps.Engine.Stop()
}

// State is the engine state.
func (a *App) State() playback.State {
	return a.deps.Engine.State()
}

// Revisit fetches a history entry as a one-verse group under its theme.
func (a *App) Revisit(ctx context.Context, entry history.Entry) ([]ThemedVerses, error) {
	return a.Fetch(ctx, entry.Theme+"\n"+entry.Reference)
}

// History returns the playback history, newest first.
func (a *App) History() []history.Entry {
	return a.deps.Recorder.Entries()
}

// ClearHistory empties the playback history.
func (a *App) ClearHistory() {
	a.deps.Recorder.Clear()
}

// Preferences returns the current provider, voice and playback settings.
func (a *App) Preferences() settings.Preferences {
	a.mu.Lock()
	defer a.mu.Unlock()

	prefs := a.prefs
	current := a.deps.Engine.Settings()
	prefs.Rate = current.Rate
	prefs.PitchCents = current.PitchCents

	return prefs
}

// SetRate changes the rate for the next session.
func (a *App) SetRate(rate float64) error {
	err := a.deps.Engine.SetRate(rate)
	if err != nil {
		return err
	}

	a.persistPreferences()

	return nil
}

// SetPitch changes the pitch for the next session.
func (a *App) SetPitch(cents float64) error {
	err := a.deps.Engine.SetPitch(cents)
	if err != nil {
		return err
	}

	a.persistPreferences()

	return nil
}

// SetProvider selects a provider and resets the voice to its default.
func (a *App) SetProvider(id core.ProviderID) error {
	_, err := a.deps.Registry.Get(id)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.prefs.Provider = id
	a.prefs.Voice = a.deps.Registry.DefaultVoice(id)
	a.mu.Unlock()

	a.persistPreferences()

	return nil
}

// SetVoice selects a voice offered by the current provider.
func (a *App) SetVoice(voiceID string) error {
	a.mu.Lock()
	id := a.prefs.Provider
	a.mu.Unlock()

	if !a.deps.Registry.HasVoice(id, voiceID) {
		return fmt.Errorf(errFmtUnknownVoice, core.ErrInput, voiceID, id)
	}

	a.mu.Lock()
	a.prefs.Voice = voiceID
	a.mu.Unlock()

	a.persistPreferences()

	return nil
}

// Voices lists the voices of the current provider.
func (a *App) Voices() []provider.Voice {
	a.mu.Lock()
	id := a.prefs.Provider
	a.mu.Unlock()

	return a.deps.Registry.Voices(id)
}

// RefreshVoices asks the current provider for its voice list. On failure the
// built-in list stays in use and the error is returned.
func (a *App) RefreshVoices(ctx context.Context) ([]provider.Voice, error) {
	a.mu.Lock()
	id := a.prefs.Provider
	a.mu.Unlock()

	return a.deps.Registry.RefreshVoices(ctx, id)
}

// SetAPIKey stores the key for name. A new ElevenLabs key refreshes its voices.
func (a *App) SetAPIKey(ctx context.Context, name, key string) error {
	err := a.deps.Settings.SetAPIKey(name, strings.TrimSpace(key))
	if err != nil {
		return err
	}

	if name == settings.KEY_ELEVENLABS {
		_, err = a.deps.Registry.RefreshVoices(ctx, core.ProviderElevenLabs)
		if err != nil {
			a.deps.Log.Warn(logFmtVoiceRefresh, core.ProviderElevenLabs, err)
		}
	}

	return nil
}

func (a *App) upsertText(ctx context.Context, p core.Passage) cache.VerseRecord {
	record := cache.VerseRecord{Reference: p.Reference, Text: p.Text}

	existing, err := a.deps.Store.Get(ctx, p.Reference)
	if err == nil {
		a.deps.Metrics.CacheOperation(metrics.OP_GET, metrics.RESULT_OK)
		record.Audio = existing.Audio
	} else {
		a.cacheReadFailed(p.Reference, err)
	}

	err = a.deps.Store.Put(ctx, record)
	if err != nil {
		a.deps.Metrics.CacheOperation(metrics.OP_PUT, metrics.RESULT_ERROR)
		a.deps.Log.Warn(logFmtCacheWrite, p.Reference, err)
	} else {
		a.deps.Metrics.CacheOperation(metrics.OP_PUT, metrics.RESULT_OK)
	}

	return record
}

func (a *App) cacheReadFailed(reference string, err error) {
	if errors.Is(err, cache.ErrNotFound) {
		a.deps.Metrics.CacheOperation(metrics.OP_GET, metrics.RESULT_MISS)

		return
	}

	a.deps.Metrics.CacheOperation(metrics.OP_GET, metrics.RESULT_ERROR)
	a.deps.Log.Warn(logFmtCacheRead, reference, err)
}

func (a *App) persistPreferences() {
	err := a.deps.Settings.SetPreferences(a.Preferences())
	if err != nil {
		a.deps.Log.Warn(logFmtSettings, err)
	}
}

func (a *App) themeOf(reference string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	theme, ok := a.themes[reference]

	return theme, ok && theme != ""
}

func (a *App) requestLocked() pipeline.Request {
	return pipeline.Request{Provider: a.prefs.Provider, VoiceID: a.prefs.Voice}
}

func (a *App) setGroupsLocked(groups []ThemedVerses) {
	a.groups = groups
	a.themes = make(map[string]string)

	for _, group := range groups {
		for _, verse := range group.Verses {
			a.themes[verse.Reference] = group.Theme
		}
	}
}

func (a *App) findLocked(reference string) (cache.VerseRecord, bool) {
	for _, group := range a.groups {
		for _, verse := range group.Verses {
			if verse.Reference == reference {
				return verse, true
			}
		}
	}

	return cache.VerseRecord{}, false
}

func (a *App) attachLocked(record cache.VerseRecord) {
	for g := range a.groups {
		for v := range a.groups[g].Verses {
			if a.groups[g].Verses[v].Reference == record.Reference {
				a.groups[g].Verses[v].Audio = record.Audio
			}
		}
	}
}

func countVerses(groups []ThemedVerses) int {
	total := 0
	for _, group := range groups {
		total += len(group.Verses)
	}

	return total
}

func cloneGroups(groups []ThemedVerses) []ThemedVerses {
	out := make([]ThemedVerses, len(groups))
	for i, group := range groups {
		out[i] = ThemedVerses{Theme: group.Theme, Verses: append([]cache.VerseRecord(nil), group.Verses...)}
	}

	return out
}
