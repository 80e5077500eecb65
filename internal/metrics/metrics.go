// Package metrics holds the Prometheus collectors for generation, cache and
// playback activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audio_bible"

// Label values.
const (
	OP_GET = "get"
	OP_PUT = "put"

	RESULT_OK    = "ok"
	RESULT_MISS  = "miss"
	RESULT_ERROR = "error"

	EVENT_PLAY        = "play"
	EVENT_SEEK        = "seek"
	EVENT_TOGGLE_STOP = "toggle_stop"
	EVENT_STOP        = "stop"
	EVENT_END         = "end"
)

// Error kinds used as the "kind" label.
const (
	kindInput    = "input"
	kindUpstream = "upstream"
	kindDecode   = "decode"
	kindStorage  = "storage"
	kindOther    = "other"
)

// Metrics groups every collector the application exports.
type Metrics struct {
	GenerationSeconds *prometheus.HistogramVec
	GenerationErrors  *prometheus.CounterVec
	CacheOperations   *prometheus.CounterVec
	PlaybackEvents    *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		GenerationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tts",
			Name:      "generation_seconds",
		}, []string{"provider"}),
		GenerationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tts",
			Name:      "errors_total",
		}, []string{"provider", "kind"}),
		CacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
		}, []string{"op", "result"}),
		PlaybackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "events_total",
		}, []string{"event"}),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.GenerationSeconds)
	reg.MustRegister(m.GenerationErrors)
	reg.MustRegister(m.CacheOperations)
	reg.MustRegister(m.PlaybackEvents)
}

// ObserveGeneration records one synthesis attempt.
func (m *Metrics) ObserveGeneration(provider core.ProviderID, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	if err != nil {
		m.GenerationErrors.WithLabelValues(string(provider), ErrorKind(err)).Inc()

		return
	}

	m.GenerationSeconds.WithLabelValues(string(provider)).Observe(elapsed.Seconds())
}

// CacheOperation counts a cache get or put with its result label.
func (m *Metrics) CacheOperation(op, result string) {
	if m == nil {
		return
	}

	m.CacheOperations.WithLabelValues(op, result).Inc()
}

// PlaybackEvent counts an engine transition.
func (m *Metrics) PlaybackEvent(event string) {
	if m == nil {
		return
	}

	m.PlaybackEvents.WithLabelValues(event).Inc()
}

// ErrorKind maps an error onto its taxonomy label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrInput):
		return kindInput
	case errors.Is(err, core.ErrUpstream):
		return kindUpstream
	case errors.Is(err, core.ErrDecode):
		return kindDecode
	case errors.Is(err, core.ErrStorage):
		return kindStorage
	default:
		return kindOther
	}
}
