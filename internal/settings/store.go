// Package settings persists small scalar state in a TOML file: sealed API
// keys, the last input and verse groups, playback preferences and history.
// It is kept apart from the verse cache.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/fsutil"
	"github.com/book-expert/audio-bible/internal/history"
	"github.com/book-expert/audio-bible/internal/passage"
	"github.com/book-expert/logger"
)

// File names inside the data directory.
const (
	FILE_NAME     = "settings.toml"
	KEY_FILE_NAME = "settings.key"
	filePerm      = 0o600
)

// API key names.
const (
	KEY_ESV        = "esv"
	KEY_GEMINI     = "gemini"
	KEY_ELEVENLABS = "elevenlabs"
	KEY_OPENAI     = "openai"
	KEY_HUME       = "hume"
)

// envOverrides name the environment variables that take precedence over stored keys.
var envOverrides = map[string]string{
	KEY_ESV:        "ESV_API_KEY",
	KEY_GEMINI:     "GEMINI_API_KEY",
	KEY_ELEVENLABS: "ELEVENLABS_API_KEY",
	KEY_OPENAI:     "OPENAI_API_KEY",
	KEY_HUME:       "HUME_API_KEY",
}

// Error and log formats.
const (
	errFmtRead       = "%w: read settings '%s': %w"
	errFmtParse      = "%w: parse settings '%s': %w"
	errFmtWrite      = "%w: write settings '%s': %w"
	errFmtSeal       = "%w: seal %s key: %w"
	errFmtKeyFile    = "%w: settings key '%s': %w"
	logFmtUnsealFail = "Stored %s key could not be decrypted; using it as plain text: %v"
)

// Preferences are the user's provider and playback choices.
type Preferences struct {
	Provider   core.ProviderID `toml:"provider"`
	Voice      string          `toml:"voice"`
	Rate       float64         `toml:"rate"`
	PitchCents float64         `toml:"pitch_cents"`
}

type document struct {
	APIKeys     map[string]string `toml:"api_keys"`
	LastInput   string            `toml:"last_input"`
	LastGroups  []passage.Group   `toml:"last_groups"`
	History     []history.Entry   `toml:"history"`
	Preferences Preferences       `toml:"preferences"`
}

// Store is the settings file. Every setter writes the file before returning.
type Store struct {
	sealer *Sealer
	log    *logger.Logger
	doc    document
	path   string
	mu     sync.Mutex
}

// Open loads <dir>/settings.toml, creating the directory and key file as needed.
func Open(dir string, log *logger.Logger) (*Store, error) {
	err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	keyPath := filepath.Join(dir, KEY_FILE_NAME)

	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf(errFmtKeyFile, core.ErrStorage, keyPath, err)
	}

	sealer, err := NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf(errFmtKeyFile, core.ErrStorage, keyPath, err)
	}

	store := &Store{
		sealer: sealer,
		log:    log,
		doc:    document{APIKeys: map[string]string{}},
		path:   filepath.Join(dir, FILE_NAME),
	}

	data, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}

	if err != nil {
		return nil, fmt.Errorf(errFmtRead, core.ErrStorage, store.path, err)
	}

	err = toml.Unmarshal(data, &store.doc)
	if err != nil {
		return nil, fmt.Errorf(errFmtParse, core.ErrStorage, store.path, err)
	}

	if store.doc.APIKeys == nil {
		store.doc.APIKeys = map[string]string{}
	}

	return store, nil
}

// Path is the settings file location.
func (s *Store) Path() string {
	return s.path
}

// APIKey returns the decrypted key for name, or "" when unset.
func (s *Store) APIKey(name string) string {
	s.mu.Lock()
	sealed := s.doc.APIKeys[name]
	s.mu.Unlock()

	plaintext, err := s.sealer.Open(sealed)
	if err != nil {
		s.log.Warn(logFmtUnsealFail, name, err)

		return sealed
	}

	return plaintext
}

// ResolveAPIKey returns the environment override for name when set,
// otherwise the stored key.
func (s *Store) ResolveAPIKey(name string) string {
	if env, ok := envOverrides[name]; ok {
		value := strings.TrimSpace(os.Getenv(env))
		if value != "" {
			return value
		}
	}

	return s.APIKey(name)
}

// KeyFunc binds ResolveAPIKey to name for clients that read the key per request.
func (s *Store) KeyFunc(name string) func() string {
	return func() string {
		return s.ResolveAPIKey(name)
	}
}

// SetAPIKey seals and stores key; an empty key removes it.
func (s *Store) SetAPIKey(name, key string) error {
	sealed, err := s.sealer.Seal(key)
	if err != nil {
		return fmt.Errorf(errFmtSeal, core.ErrStorage, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sealed == "" {
		delete(s.doc.APIKeys, name)
	} else {
		s.doc.APIKeys[name] = sealed
	}

	return s.saveLocked()
}

// LastInput is the most recent fetch input.
func (s *Store) LastInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.LastInput
}

// LastGroups are the themes and references of the most recent fetch.
func (s *Store) LastGroups() []passage.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]passage.Group(nil), s.doc.LastGroups...)
}

// SetLastSession stores the input and resulting groups of a successful fetch.
func (s *Store) SetLastSession(input string, groups []passage.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.LastInput = input
	s.doc.LastGroups = append([]passage.Group(nil), groups...)

	return s.saveLocked()
}

// ClearLastGroups forgets the stored groups.
func (s *Store) ClearLastGroups() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.LastGroups = nil

	return s.saveLocked()
}

// Preferences returns the stored preferences.
func (s *Store) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Preferences
}

// SetPreferences replaces the stored preferences.
func (s *Store) SetPreferences(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Preferences = prefs

	return s.saveLocked()
}

// LoadHistory implements history.Persister.
func (s *Store) LoadHistory() ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]history.Entry(nil), s.doc.History...), nil
}

// SaveHistory implements history.Persister.
func (s *Store) SaveHistory(entries []history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.History = append([]history.Entry(nil), entries...)

	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := toml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf(errFmtWrite, core.ErrStorage, s.path, err)
	}

	err = writeFileAtomic(s.path, data)
	if err != nil {
		return fmt.Errorf(errFmtWrite, core.ErrStorage, s.path, err)
	}

	return nil
}

// writeFileAtomic replaces path via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Chmod(tmpName, filePerm)
	}

	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
