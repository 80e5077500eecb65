package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/logger"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

const schema = `
create table if not exists verses (
	reference        text primary key,
	text             text not null,
	audio            blob,
	provider_id      text not null default '',
	voice_label      text not null default '',
	duration_seconds real not null default 0
);`

const upsertVerse = `
insert into verses (reference, text, audio, provider_id, voice_label, duration_seconds)
values (?, ?, ?, ?, ?, ?)
on conflict (reference) do update set
	text             = excluded.text,
	audio            = excluded.audio,
	provider_id      = excluded.provider_id,
	voice_label      = excluded.voice_label,
	duration_seconds = excluded.duration_seconds`

const selectVerse = `
select reference, text, audio, provider_id, voice_label, duration_seconds
from verses
where reference = ?`

// SQLiteStore keeps verses in a single-file SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite '%s': %w", core.ErrStorage, path, err)
	}

	// One writer keeps the file lock uncontended.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: apply schema to '%s': %w", core.ErrStorage, path, err)
	}

	log.Info("Verse cache opened at %s", path)

	return &SQLiteStore{db: db, log: log}, nil
}

// Put replaces the record for verse.Reference in one statement.
func (s *SQLiteStore) Put(ctx context.Context, verse VerseRecord) error {
	if verse.Reference == "" {
		return fmt.Errorf(errFmtEmptyRefPut, core.ErrInput)
	}

	var (
		blob       []byte
		providerID string
		voiceLabel string
		duration   float64
	)

	if verse.Audio != nil {
		blob = verse.Audio.EncodedBytes
		providerID = string(verse.Audio.ProviderID)
		voiceLabel = verse.Audio.VoiceLabel
		duration = verse.Audio.DurationSeconds
	}

	_, err := s.db.ExecContext(ctx, upsertVerse,
		verse.Reference, verse.Text, blob, providerID, voiceLabel, duration)
	if err != nil {
		return fmt.Errorf(errFmtPut, core.ErrStorage, verse.Reference, err)
	}

	return nil
}

// Get loads the record for reference.
func (s *SQLiteStore) Get(ctx context.Context, reference string) (VerseRecord, error) {
	var (
		verse      VerseRecord
		blob       []byte
		providerID string
		voiceLabel string
		duration   float64
	)

	row := s.db.QueryRowContext(ctx, selectVerse, reference)

	err := row.Scan(&verse.Reference, &verse.Text, &blob, &providerID, &voiceLabel, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return VerseRecord{}, fmt.Errorf(errFmtNotFound, ErrNotFound, reference)
	}

	if err != nil {
		return VerseRecord{}, fmt.Errorf(errFmtGet, core.ErrStorage, reference, err)
	}

	if len(blob) > 0 {
		verse.Audio = &AudioRecord{
			EncodedBytes:    blob,
			ProviderID:      core.ProviderID(providerID),
			VoiceLabel:      voiceLabel,
			DurationSeconds: duration,
		}
	}

	return verse, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("%w: close sqlite: %w", core.ErrStorage, err)
	}

	return nil
}
