package app_test

import (
	"context"
	"encoding/binary"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audio-bible/internal/app"
	"github.com/book-expert/audio-bible/internal/cache"
	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/history"
	"github.com/book-expert/audio-bible/internal/passage"
	"github.com/book-expert/audio-bible/internal/pipeline"
	"github.com/book-expert/audio-bible/internal/playback"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/audio-bible/internal/settings"
	"github.com/book-expert/logger"
)

type fakeText struct {
	passages map[string][]core.Passage
	gates    map[string]chan struct{}
	queries  []string
	mu       sync.Mutex
}

func (f *fakeText) FetchPassages(ctx context.Context, query, _ string) ([]core.Passage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gates[query]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	passages, ok := f.passages[query]
	if !ok {
		return nil, core.ErrUpstream
	}

	return passages, nil
}

type fakeSynth struct {
	id core.ProviderID
}

func (f fakeSynth) ID() core.ProviderID { return f.id }

func (f fakeSynth) Voices(context.Context) ([]provider.Voice, error) {
	return provider.Catalogue(f.id), nil
}

func (f fakeSynth) Synthesize(context.Context, string, string) (provider.Audio, error) {
	data := make([]byte, 2*2400)
	for i := range 2400 {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(i%64))
	}

	return provider.RawPCM(data), nil
}

type silentVoice struct {
	closed bool
	mu     sync.Mutex
}

func (v *silentVoice) Play() {}

func (v *silentVoice) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return !v.closed
}

func (v *silentVoice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true

	return nil
}

type silentOutput struct{}

func (silentOutput) Format() playback.Format { return playback.Format{SampleRate: 24000, Channels: 1} }

func (silentOutput) Open(pcm io.Reader) (playback.Voice, error) {
	_, err := io.Copy(io.Discard, pcm)
	if err != nil {
		return nil, err
	}

	return &silentVoice{}, nil
}

type fixture struct {
	app      *app.App
	text     *fakeText
	store    *cache.SQLiteStore
	settings *settings.Store
	deps     app.Deps
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()

	log, err := logger.New(dir, "app-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	store, err := cache.NewSQLiteStore(context.Background(), filepath.Join(dir, "verses.db"), log)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	prefs, err := settings.Open(dir, log)
	require.NoError(t, err)
	require.NoError(t, prefs.SetAPIKey(settings.KEY_ESV, "esv-key"))

	registry := provider.NewRegistry(log,
		fakeSynth{id: core.ProviderGemini}, fakeSynth{id: core.ProviderOpenAI})

	clock := time.Unix(1700000000, 0)

	engine, err := playback.NewEngine(playback.Options{
		Output:        silentOutput{},
		Library:       store,
		Now:           func() time.Time { return clock },
		Log:           log,
		FrameInterval: time.Hour,
	})
	require.NoError(t, err)

	t.Cleanup(engine.Stop)

	text := &fakeText{
		passages: map[string][]core.Passage{
			"John 3:16,Romans 8:28": {
				{Reference: "John 3:16", Text: "For God so loved the world"},
				{Reference: "Romans 8:28", Text: "And we know that for those who love God"},
			},
			"Psalm 23:1": {{Reference: "Psalm 23:1", Text: "The LORD is my shepherd"}},
			"John 3:16":  {{Reference: "John 3:16", Text: "For God so loved the world"}},
		},
		gates: map[string]chan struct{}{},
	}

	deps := app.Deps{
		Store:    store,
		Settings: prefs,
		Text:     text,
		Registry: registry,
		Pipeline: pipeline.New(registry, store, 2, nil, log),
		Engine:   engine,
		Recorder: history.NewRecorder(prefs, nil, log),
		Log:      log,
	}

	return &fixture{
		app:      app.New(deps, settings.Preferences{Provider: core.ProviderGemini}),
		text:     text,
		store:    store,
		settings: prefs,
		deps:     deps,
		dir:      dir,
	}
}

const twoGroups = "Love\nJohn 3:16\nRomans 8:28\n\nComfort\nPsalm 23:1"

func TestFetch_LoadsGroupsAndCachesText(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	groups, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "Love", groups[0].Theme)
	assert.Len(t, groups[0].Verses, 2)
	assert.Equal(t, "Comfort", groups[1].Theme)
	assert.Equal(t, "Psalm 23:1", groups[1].Verses[0].Reference)

	record, err := f.store.Get(ctx, "Romans 8:28")
	require.NoError(t, err)
	assert.Equal(t, "And we know that for those who love God", record.Text)
	assert.False(t, record.HasAudio())

	assert.Equal(t, twoGroups, f.settings.LastInput())
	assert.Equal(t, []string{"John 3:16", "Romans 8:28"}, f.settings.LastGroups()[0].References)
}

func TestFetch_KeepsCachedAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	generated, err := f.app.Generate(ctx, "Psalm 23:1")
	require.NoError(t, err)

	groups, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	require.True(t, groups[1].Verses[0].HasAudio())
	assert.Equal(t, generated.Audio.EncodedBytes, groups[1].Verses[0].Audio.EncodedBytes)

	stored, err := f.store.Get(ctx, "Psalm 23:1")
	require.NoError(t, err)
	assert.True(t, stored.HasAudio())
}

func TestFetch_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.app.Fetch(context.Background(), "  ")
	require.ErrorIs(t, err, core.ErrInput)

	_, err = f.app.Fetch(context.Background(), "Unknown\nJude 1:99")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Empty(t, f.app.Groups())
}

func TestFetch_StaleResultIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	gate := make(chan struct{})
	f.text.gates["Psalm 23:1"] = gate

	errs := make(chan error, 1)

	go func() {
		_, err := f.app.Fetch(ctx, "Comfort\nPsalm 23:1")
		errs <- err
	}()

	require.Eventually(t, func() bool {
		f.text.mu.Lock()
		defer f.text.mu.Unlock()

		return len(f.text.queries) == 1
	}, 2*time.Second, time.Millisecond)

	_, err := f.app.Fetch(ctx, "Love\nJohn 3:16")
	require.NoError(t, err)

	close(gate)
	require.ErrorIs(t, <-errs, app.ErrStaleFetch)

	groups := f.app.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Love", groups[0].Theme)
}

func TestRestore_SkipsMissingVerses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	require.NoError(t, f.settings.SetLastSession(twoGroups, []passage.Group{
		{Theme: "Love", References: []string{"John 3:16", "Missing 1:1"}},
		{Theme: "Empty", References: []string{"Missing 2:2"}},
	}))

	restored := f.app.Restore(ctx)

	require.Len(t, restored, 1)
	assert.Equal(t, "Love", restored[0].Theme)
	require.Len(t, restored[0].Verses, 1)
	assert.Equal(t, "John 3:16", restored[0].Verses[0].Reference)
}

func TestRestore_ForgetsGroupsWithNothingCached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.settings.SetLastSession("Gone\nMissing 1:1", []passage.Group{
		{Theme: "Gone", References: []string{"Missing 1:1"}},
	}))

	assert.Empty(t, f.app.Restore(context.Background()))
	assert.Empty(t, f.settings.LastGroups())
	assert.Equal(t, "Gone\nMissing 1:1", f.app.LastInput())
}

func TestGenerate_UnknownVerse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.app.Generate(context.Background(), "Obadiah 1:1")
	require.ErrorIs(t, err, core.ErrInput)
}

func TestGenerateAll_AttachesAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	results := f.app.GenerateAll(ctx)
	require.Len(t, results, 3)

	for _, result := range results {
		require.NoError(t, result.Err, result.Reference)
	}

	for _, group := range f.app.Groups() {
		for _, verse := range group.Verses {
			require.True(t, verse.HasAudio(), verse.Reference)
			assert.Equal(t, core.ProviderGemini, verse.Audio.ProviderID)
			assert.Equal(t, "Kore (Female)", verse.Audio.VoiceLabel)
			assert.InDelta(t, 0.1, verse.Audio.DurationSeconds, 1e-9)
		}
	}

	assert.Empty(t, f.app.GenerateAll(ctx), "nothing left to generate")
}

func TestTogglePlay_RecordsHistoryWithTheme(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	_, err = f.app.Generate(ctx, "Psalm 23:1")
	require.NoError(t, err)

	require.NoError(t, f.app.TogglePlay(ctx, "Psalm 23:1"))

	playing, ok := f.app.State().(playback.Playing)
	require.True(t, ok)
	assert.Equal(t, "Psalm 23:1", playing.Session.Reference)

	entries := f.app.History()
	require.Len(t, entries, 1)
	assert.Equal(t, "Comfort", entries[0].Theme)
	assert.Equal(t, "Psalm 23:1", entries[0].Reference)

	require.NoError(t, f.app.TogglePlay(ctx, "Psalm 23:1"))
	assert.IsType(t, playback.Idle{}, f.app.State())
	assert.Len(t, f.app.History(), 1)

	f.app.ClearHistory()
	assert.Empty(t, f.app.History())
}

func TestTogglePlay_UnloadedVerseIsNotRecorded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	_, err = f.app.Generate(ctx, "Psalm 23:1")
	require.NoError(t, err)

	_, err = f.app.Fetch(ctx, "Love\nJohn 3:16")
	require.NoError(t, err)

	require.NoError(t, f.app.TogglePlay(ctx, "Psalm 23:1"))

	playing, ok := f.app.State().(playback.Playing)
	require.True(t, ok)
	assert.Equal(t, "Psalm 23:1", playing.Session.Reference)
	assert.Empty(t, f.app.History())
}

func TestTogglePlay_NoAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	err = f.app.TogglePlay(ctx, "John 3:16")
	require.ErrorIs(t, err, playback.ErrNoAudio)
	assert.IsType(t, playback.Idle{}, f.app.State())
	assert.Empty(t, f.app.History())
}

func TestSeek_StartsAtFraction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Fetch(ctx, twoGroups)
	require.NoError(t, err)

	_, err = f.app.Generate(ctx, "John 3:16")
	require.NoError(t, err)

	require.NoError(t, f.app.Seek(ctx, "John 3:16", 0.5))

	playing, ok := f.app.State().(playback.Playing)
	require.True(t, ok)
	assert.InDelta(t, 0.05, playing.Session.StartOffset, 1e-9)

	require.ErrorIs(t, f.app.Seek(ctx, "John 3:16", 1.5), playback.ErrInvalidSeek)

	f.app.Stop()
	assert.IsType(t, playback.Idle{}, f.app.State())
}

func TestRevisit_FetchesThemeAndReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	groups, err := f.app.Revisit(context.Background(), history.Entry{Theme: "Love", Reference: "John 3:16"})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, "Love", groups[0].Theme)
	assert.Equal(t, "John 3:16", groups[0].Verses[0].Reference)
	assert.Equal(t, "Love\nJohn 3:16", f.app.LastInput())
}

func TestPreferences_PersistAndValidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	assert.Equal(t, core.ProviderGemini, f.app.Preferences().Provider)
	assert.Equal(t, "Kore", f.app.Preferences().Voice)

	require.ErrorIs(t, f.app.SetProvider("polly"), core.ErrInput)
	require.NoError(t, f.app.SetProvider(core.ProviderOpenAI))
	assert.Equal(t, "alloy", f.app.Preferences().Voice)

	require.ErrorIs(t, f.app.SetVoice("Kore"), core.ErrInput)
	require.NoError(t, f.app.SetVoice("nova"))

	require.ErrorIs(t, f.app.SetRate(3), playback.ErrInvalidSetting)
	require.NoError(t, f.app.SetRate(1.5))
	require.NoError(t, f.app.SetPitch(-200))

	stored := f.settings.Preferences()
	assert.Equal(t, settings.Preferences{Provider: core.ProviderOpenAI, Voice: "nova", Rate: 1.5, PitchCents: -200}, stored)

	reopened := app.New(f.deps, settings.Preferences{Provider: core.ProviderGemini})
	assert.Equal(t, stored, reopened.Preferences())

	names := make([]string, 0)
	for _, voice := range f.app.Voices() {
		names = append(names, voice.ID)
	}

	assert.Contains(t, strings.Join(names, ","), "nova")
}

func TestSetAPIKey_StoresTrimmedKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.app.SetAPIKey(context.Background(), settings.KEY_OPENAI, "  sk-123 \n"))
	assert.Equal(t, "sk-123", f.settings.APIKey(settings.KEY_OPENAI))
}
