package metrics_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGeneration(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	m.ObserveGeneration(core.ProviderGemini, 2*time.Second, nil)
	m.ObserveGeneration(core.ProviderGemini, time.Second, fmt.Errorf("%w: quota", core.ErrUpstream))
	m.ObserveGeneration(core.ProviderGemini, time.Second, fmt.Errorf("%w: bad pcm", core.ErrDecode))

	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationSeconds))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GenerationErrors.WithLabelValues("gemini", "upstream")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GenerationErrors.WithLabelValues("gemini", "decode")), 0)
}

func TestCacheAndPlaybackCounters(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	m.CacheOperation(metrics.OP_GET, metrics.RESULT_MISS)
	m.CacheOperation(metrics.OP_GET, metrics.RESULT_MISS)
	m.PlaybackEvent(metrics.EVENT_PLAY)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.CacheOperations.WithLabelValues("get", "miss")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PlaybackEvents.WithLabelValues("play")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveGeneration(core.ProviderHume, time.Second, nil)
		m.CacheOperation(metrics.OP_PUT, metrics.RESULT_OK)
		m.PlaybackEvent(metrics.EVENT_END)
	})
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New()
	m.Register(reg)
	m.PlaybackEvent(metrics.EVENT_SEEK)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "input", metrics.ErrorKind(core.ErrInput))
	assert.Equal(t, "storage", metrics.ErrorKind(fmt.Errorf("wrap: %w", core.ErrStorage)))
	assert.Equal(t, "other", metrics.ErrorKind(errors.New("boom")))
}
