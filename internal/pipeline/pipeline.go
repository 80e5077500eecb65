// Package pipeline turns verse text into cached WAV audio: synthesize,
// normalise the provider payload, encode, measure and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/book-expert/audio-bible/internal/audio"
	"github.com/book-expert/audio-bible/internal/cache"
	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/metrics"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/logger"
)

// DEFAULT_WORKERS bounds concurrent generations when none is configured.
const DEFAULT_WORKERS = 2

// ErrSuperseded is returned when a newer generation for the same reference
// started before this one finished. Its audio is discarded.
var ErrSuperseded = errors.New("generation superseded")

// Error and log formats.
const (
	errFmtEmptyText     = "%w: cannot read an empty verse '%s'"
	errFmtUnknownKind   = "%w: unknown audio kind %d"
	errFmtSynthesize    = "synthesize '%s': %w"
	errFmtNormalize     = "normalize '%s': %w"
	errFmtEncode        = "encode '%s': %w"
	errFmtMeasure       = "measure '%s': %w"
	errFmtSuperseded    = "%w: '%s'"
	logFmtGenerated     = "Generated %.2fs of audio for '%s' with %s (%s)"
	logFmtCacheWrite    = "Audio for '%s' not cached: %v"
	logFmtVerseFailed   = "Generation failed for '%s': %v"
	logFmtBatchComplete = "Generated %d/%d verse(s)"
)

// Request selects the provider and voice for a generation.
type Request struct {
	Provider core.ProviderID
	VoiceID  string
}

// Result is the outcome of one verse in a batch.
type Result struct {
	Err       error
	Reference string
	Record    cache.VerseRecord
}

// Pipeline generates and caches verse audio. It is safe for concurrent use.
type Pipeline struct {
	registry    *provider.Registry
	store       cache.Store
	metrics     *metrics.Metrics
	log         *logger.Logger
	generations map[string]uint64
	workers     int
	mu          sync.Mutex
}

// New creates a pipeline. workers <= 0 selects DEFAULT_WORKERS.
func New(registry *provider.Registry, store cache.Store, workers int, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	if workers <= 0 {
		workers = DEFAULT_WORKERS
	}

	return &Pipeline{
		registry:    registry,
		store:       store,
		metrics:     m,
		log:         log,
		generations: make(map[string]uint64),
		workers:     workers,
	}
}

// Normalize decodes a provider payload into a Buffer. Raw PCM uses the
// provider's declared format; containers are sniffed.
func Normalize(payload provider.Audio) (audio.Buffer, error) {
	switch payload.Kind {
	case provider.AUDIO_RAW_PCM:
		sampleRate := payload.SampleRate
		if sampleRate == 0 {
			sampleRate = audio.DEFAULT_SAMPLE_RATE
		}

		channels := payload.Channels
		if channels == 0 {
			channels = audio.DEFAULT_CHANNELS
		}

		return audio.DecodePCM(payload.Data, sampleRate, channels)
	case provider.AUDIO_CONTAINER:
		return audio.DecodeContainer(payload.Data)
	default:
		return audio.Buffer{}, fmt.Errorf(errFmtUnknownKind, core.ErrDecode, payload.Kind)
	}
}

// Generate synthesizes verse.Text and stores the WAV alongside the text.
//
// A failed cache write is logged and the record is still returned. When a
// newer Generate for the same reference has started, the result is dropped
// with ErrSuperseded and nothing is written.
func (p *Pipeline) Generate(ctx context.Context, verse core.Passage, req Request) (cache.VerseRecord, error) {
	if strings.TrimSpace(verse.Text) == "" {
		return cache.VerseRecord{}, fmt.Errorf(errFmtEmptyText, core.ErrInput, verse.Reference)
	}

	token := p.begin(verse.Reference)

	record, err := p.render(ctx, verse, req)
	if err != nil {
		return cache.VerseRecord{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generations[verse.Reference] != token {
		return cache.VerseRecord{}, fmt.Errorf(errFmtSuperseded, ErrSuperseded, verse.Reference)
	}

	err = p.store.Put(ctx, record)
	if err != nil {
		p.metrics.CacheOperation(metrics.OP_PUT, metrics.RESULT_ERROR)
		p.log.Warn(logFmtCacheWrite, verse.Reference, err)
	} else {
		p.metrics.CacheOperation(metrics.OP_PUT, metrics.RESULT_OK)
	}

	return record, nil
}

// GenerateAll runs Generate for every verse with at most the configured
// number in flight. A failure affects only its own Result.
func (p *Pipeline) GenerateAll(ctx context.Context, verses []core.Passage, req Request) []Result {
	results := make([]Result, len(verses))

	var group errgroup.Group

	group.SetLimit(p.workers)

	for i, verse := range verses {
		group.Go(func() error {
			record, err := p.Generate(ctx, verse, req)
			if err != nil {
				p.log.Error(logFmtVerseFailed, verse.Reference, err)
			}

			results[i] = Result{Err: err, Reference: verse.Reference, Record: record}

			return nil
		})
	}

	_ = group.Wait()

	succeeded := 0

	for _, result := range results {
		if result.Err == nil {
			succeeded++
		}
	}

	p.log.Info(logFmtBatchComplete, succeeded, len(verses))

	return results
}

func (p *Pipeline) begin(reference string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generations[reference]++

	return p.generations[reference]
}

func (p *Pipeline) render(ctx context.Context, verse core.Passage, req Request) (cache.VerseRecord, error) {
	synth, err := p.registry.Get(req.Provider)
	if err != nil {
		return cache.VerseRecord{}, err
	}

	started := time.Now()
	payload, err := synth.Synthesize(ctx, verse.Text, req.VoiceID)
	p.metrics.ObserveGeneration(req.Provider, time.Since(started), err)

	if err != nil {
		return cache.VerseRecord{}, fmt.Errorf(errFmtSynthesize, verse.Reference, err)
	}

	buf, err := Normalize(payload)
	if err != nil {
		p.metrics.ObserveGeneration(req.Provider, 0, err)

		return cache.VerseRecord{}, fmt.Errorf(errFmtNormalize, verse.Reference, err)
	}

	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		return cache.VerseRecord{}, fmt.Errorf(errFmtEncode, verse.Reference, err)
	}

	// Duration comes from the stored bytes, not the provider buffer.
	stored, err := audio.DecodeWAV(wav)
	if err != nil {
		return cache.VerseRecord{}, fmt.Errorf(errFmtMeasure, verse.Reference, err)
	}

	label := p.registry.VoiceLabel(req.Provider, req.VoiceID)
	p.log.Info(logFmtGenerated, stored.Duration(), verse.Reference, req.Provider, label)

	return cache.VerseRecord{
		Reference: verse.Reference,
		Text:      verse.Text,
		Audio: &cache.AudioRecord{
			EncodedBytes:    wav,
			ProviderID:      req.Provider,
			VoiceLabel:      label,
			DurationSeconds: stored.Duration(),
		},
	}, nil
}
