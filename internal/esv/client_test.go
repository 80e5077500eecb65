package esv_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/esv"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) *esv.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log, err := logger.New(t.TempDir(), "esv-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return esv.NewClient(server.URL, 5*time.Second, log)
}

func TestFetchPassages_Success(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/passage/text/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "John 3:16-17;Romans 8:28", r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("include-verse-numbers"))
		assert.Equal(t, "false", r.URL.Query().Get("include-headings"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"passages":[
			"John 3:16–17\n\n  [16] For God so loved the world, [17] For God did not send\n",
			"Romans 8:28\n\n  [28] And we know that for those who love God"
		]}`))
	})

	passages, err := client.FetchPassages(context.Background(), "John 3:16–17\nRomans 8:28,", "secret")
	require.NoError(t, err)

	require.Equal(t, []core.Passage{
		{Reference: "John 3:16–17", Text: "For God so loved the world, For God did not send"},
		{Reference: "Romans 8:28", Text: "And we know that for those who love God"},
	}, passages)
}

func TestFetchPassages_MissingKey(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request must not be sent without a key")
	})

	_, err := client.FetchPassages(context.Background(), "John 3:16", "  ")
	require.ErrorIs(t, err, core.ErrInput)
}

func TestFetchPassages_ErrorDetail(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
	})

	_, err := client.FetchPassages(context.Background(), "John 3:16", "bad")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "Invalid token.")
}

func TestFetchPassages_ErrorStatus(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.FetchPassages(context.Background(), "John 3:16", "key")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchPassages_NoPassages(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"passages":[]}`))
	})

	_, err := client.FetchPassages(context.Background(), "Hezekiah 1:1", "key")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "Invalid reference or no passage found")
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	client := esv.NewClient("", time.Second, nil)

	assert.Equal(t, "Genesis 1:1-3;Psalm 23", client.NormalizeQuery(" Genesis 1:1—3 ,\n\nPsalm 23\n"))
	assert.Empty(t, client.NormalizeQuery(" , \n"))
}
