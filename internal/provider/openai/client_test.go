package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/audio-bible/internal/provider/openai"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, key string, handler http.HandlerFunc) *openai.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log, err := logger.New(t.TempDir(), "openai-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return openai.NewClient(server.URL+"/v1/", "tts-1", 5*time.Second, provider.StaticKey(key), log)
}

func TestSynthesize_RequestsPCM(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x00, 0xFF, 0xFF}

	client := newClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "nova", body["voice"])
		assert.Equal(t, "pcm", body["response_format"])
		assert.Equal(t, "The Lord is my shepherd", body["input"])

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pcm)
	})

	audio, err := client.Synthesize(context.Background(), "The Lord is my shepherd", "nova")
	require.NoError(t, err)

	assert.Equal(t, provider.AUDIO_RAW_PCM, audio.Kind)
	assert.Equal(t, 24000, audio.SampleRate)
	assert.Equal(t, 1, audio.Channels)
	assert.Equal(t, pcm, audio.Data)
}

func TestSynthesize_APIError(t *testing.T) {
	t.Parallel()

	client := newClient(t, "sk-test", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid voice","type":"invalid_request_error"}}`))
	})

	_, err := client.Synthesize(context.Background(), "text", "nobody")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "Invalid voice")
}

func TestSynthesize_RequiresKey(t *testing.T) {
	t.Parallel()

	client := newClient(t, "", func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Synthesize(context.Background(), "text", "alloy")
	require.ErrorIs(t, err, core.ErrInput)
}
