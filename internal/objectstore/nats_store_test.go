// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/audio-bible/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, nats.JetStreamContext) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "verses")
	ctx := context.Background()

	err := store.Upload(ctx, "John_3_16", []byte("For God so loved the world"))
	require.NoError(t, err)

	data, err := store.Download(ctx, "John_3_16")
	require.NoError(t, err)
	require.Equal(t, []byte("For God so loved the world"), data)
}

func TestNatsObjectStore_UploadReplaces(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "verses")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "Psalm_23_1", []byte("first")))
	require.NoError(t, store.Upload(ctx, "Psalm_23_1", []byte("second")))

	data, err := store.Download(ctx, "Psalm_23_1")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "verses")

	_, err := store.Download(context.Background(), "missing")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newStore(t, "verses")
	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "Romans_8_28", []byte("all things")))

	again, err := objectstore.New(jetstreamContext, "verses")
	require.NoError(t, err)

	data, err := again.Download(ctx, "Romans_8_28")
	require.NoError(t, err)
	require.Equal(t, []byte("all things"), data)
}
