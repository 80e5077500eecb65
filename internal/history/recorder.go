// Package history keeps the most recently played verses, newest first.
package history

import (
	"sync"
	"time"

	"github.com/book-expert/logger"
)

// MAX_ENTRIES caps the log length.
const MAX_ENTRIES = 20

const (
	logFmtSaveFailed = "Failed to persist playback history: %v"
	logFmtLoadFailed = "Failed to load playback history: %v"
)

// Entry is one played verse. PlayedAt is epoch milliseconds.
type Entry struct {
	Theme     string `json:"theme"     toml:"theme"`
	Reference string `json:"reference" toml:"reference"`
	PlayedAt  int64  `json:"playedAt"  toml:"played_at"`
}

// Persister stores the whole log.
type Persister interface {
	LoadHistory() ([]Entry, error)
	SaveHistory(entries []Entry) error
}

// Recorder maintains the log and persists it after every change. Storage
// failures are logged and never returned.
type Recorder struct {
	persister Persister
	now       func() time.Time
	log       *logger.Logger
	entries   []Entry
	mu        sync.Mutex
}

// NewRecorder loads the persisted log. A nil now selects time.Now.
func NewRecorder(persister Persister, now func() time.Time, log *logger.Logger) *Recorder {
	if now == nil {
		now = time.Now
	}

	recorder := &Recorder{persister: persister, now: now, log: log}

	entries, err := persister.LoadHistory()
	if err != nil {
		log.Warn(logFmtLoadFailed, err)

		return recorder
	}

	for i := len(entries) - 1; i >= 0; i-- {
		recorder.entries = prepend(recorder.entries, entries[i])
	}

	return recorder
}

// Record moves reference to the front under theme, dropping any older entry
// for the same reference and anything beyond MAX_ENTRIES.
func (r *Recorder) Record(theme, reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = prepend(r.entries, Entry{
		Theme:     theme,
		Reference: reference,
		PlayedAt:  r.now().UnixMilli(),
	})
	r.saveLocked()
}

// Clear empties the log.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.saveLocked()
}

// Entries returns a copy of the log, newest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Entry(nil), r.entries...)
}

func (r *Recorder) saveLocked() {
	err := r.persister.SaveHistory(append([]Entry(nil), r.entries...))
	if err != nil {
		r.log.Warn(logFmtSaveFailed, err)
	}
}

func prepend(entries []Entry, entry Entry) []Entry {
	out := make([]Entry, 0, MAX_ENTRIES)
	out = append(out, entry)

	for _, existing := range entries {
		if len(out) == MAX_ENTRIES {
			break
		}

		if existing.Reference != entry.Reference {
			out = append(out, existing)
		}
	}

	return out
}
