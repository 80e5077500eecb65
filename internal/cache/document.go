package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/fsutil"
	"github.com/book-expert/audio-bible/internal/objectstore"
	"github.com/book-expert/logger"
)

const documentExtension = ".json"

// DocumentStore keeps each verse as one JSON document in an object store.
// A single upload carries text, audio and metadata, so a Put is atomic.
type DocumentStore struct {
	objects core.ObjectStore
	log     *logger.Logger
}

// NewDocumentStore wraps an object store.
func NewDocumentStore(objects core.ObjectStore, log *logger.Logger) *DocumentStore {
	return &DocumentStore{objects: objects, log: log}
}

// Put replaces the document for verse.Reference.
func (d *DocumentStore) Put(ctx context.Context, verse VerseRecord) error {
	if verse.Reference == "" {
		return fmt.Errorf(errFmtEmptyRefPut, core.ErrInput)
	}

	data, err := json.Marshal(verse)
	if err != nil {
		return fmt.Errorf(errFmtPut, core.ErrStorage, verse.Reference, err)
	}

	err = d.objects.Upload(ctx, documentKey(verse.Reference), data)
	if err != nil {
		return fmt.Errorf(errFmtPut, core.ErrStorage, verse.Reference, err)
	}

	return nil
}

// Get loads the document for reference.
func (d *DocumentStore) Get(ctx context.Context, reference string) (VerseRecord, error) {
	data, err := d.objects.Download(ctx, documentKey(reference))
	if errors.Is(err, objectstore.ErrNotFound) {
		return VerseRecord{}, fmt.Errorf(errFmtNotFound, ErrNotFound, reference)
	}

	if err != nil {
		return VerseRecord{}, fmt.Errorf(errFmtGet, core.ErrStorage, reference, err)
	}

	var verse VerseRecord

	err = json.Unmarshal(data, &verse)
	if err != nil {
		return VerseRecord{}, fmt.Errorf(errFmtGet, core.ErrStorage, reference, err)
	}

	if verse.Reference != reference {
		// Two references sanitised to the same key; treat as a miss.
		d.log.Warn("Cache key collision: wanted '%s', found '%s'", reference, verse.Reference)

		return VerseRecord{}, fmt.Errorf(errFmtNotFound, ErrNotFound, reference)
	}

	return verse, nil
}

func documentKey(reference string) string {
	return fsutil.SanitizeKey(reference) + documentExtension
}
