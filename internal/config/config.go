// Package config provides the configuration structure for the audio bible reader.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/fsutil"
)

// Cache backends.
const (
	BACKEND_SQLITE = "sqlite"
	BACKEND_NATS   = "nats"
)

// Defaults applied to empty fields.
const (
	DEFAULT_ESV_TIMEOUT_SECONDS = 15
	DEFAULT_TTS_TIMEOUT_SECONDS = 60
	DEFAULT_TTS_WORKERS         = 2
	DEFAULT_PROVIDER            = string(core.ProviderGemini)
	DEFAULT_BUCKET              = "verse-cache"
	DEFAULT_SQLITE_FILE         = "verses.db"
	DEFAULT_FRAME_INTERVAL_MS   = 16
	DEFAULT_RATE                = 1.0
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ESVConfig configures the scripture text source.
type ESVConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTSConfig selects the default provider and configures each provider client.
type TTSConfig struct {
	Provider          string `toml:"provider"`
	Voice             string `toml:"voice"`
	GeminiModel       string `toml:"gemini_model"`
	GeminiBaseURL     string `toml:"gemini_base_url"`
	ElevenLabsModel   string `toml:"elevenlabs_model"`
	ElevenLabsBaseURL string `toml:"elevenlabs_base_url"`
	OpenAIModel       string `toml:"openai_model"`
	OpenAIBaseURL     string `toml:"openai_base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	Workers           int    `toml:"workers"`
}

// CacheConfig selects where verse audio is stored.
type CacheConfig struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// NATSConfig holds the configuration for the NATS cache backend.
type NATSConfig struct {
	URL                    string `toml:"url"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PlaybackConfig configures the audio device and the initial playback settings.
type PlaybackConfig struct {
	DeviceSampleRate int     `toml:"device_sample_rate"`
	DeviceChannels   int     `toml:"device_channels"`
	FrameIntervalMS  int     `toml:"frame_interval_ms"`
	Rate             float64 `toml:"rate"`
	PitchCents       float64 `toml:"pitch_cents"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `toml:"address"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	DataDir     string `toml:"data_dir"`
}

// Config is the root configuration structure.
type Config struct {
	ESV      ESVConfig      `toml:"esv"`
	TTS      TTSConfig      `toml:"tts"`
	Cache    CacheConfig    `toml:"cache"`
	NATS     NATSConfig     `toml:"nats"`
	Playback PlaybackConfig `toml:"playback"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration through the central configurator, then
// applies defaults and validates it.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills empty fields. Provider URLs and models stay empty so
// each client picks its own default.
func (c *Config) ApplyDefaults() {
	if c.ESV.TimeoutSeconds == 0 {
		c.ESV.TimeoutSeconds = DEFAULT_ESV_TIMEOUT_SECONDS
	}

	if c.TTS.Provider == "" {
		c.TTS.Provider = DEFAULT_PROVIDER
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = DEFAULT_TTS_TIMEOUT_SECONDS
	}

	if c.TTS.Workers == 0 {
		c.TTS.Workers = DEFAULT_TTS_WORKERS
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = fsutil.GetCacheDir()
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = filepath.Join(c.Paths.DataDir, "logs")
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BACKEND_SQLITE
	}

	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = filepath.Join(c.Paths.DataDir, DEFAULT_SQLITE_FILE)
	}

	if c.NATS.AudioObjectStoreBucket == "" {
		c.NATS.AudioObjectStoreBucket = DEFAULT_BUCKET
	}

	if c.Playback.FrameIntervalMS == 0 {
		c.Playback.FrameIntervalMS = DEFAULT_FRAME_INTERVAL_MS
	}

	if c.Playback.Rate == 0 {
		c.Playback.Rate = DEFAULT_RATE
	}
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BACKEND_SQLITE:
	case BACKEND_NATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats.url is required for the nats cache backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	switch core.ProviderID(c.TTS.Provider) {
	case core.ProviderGemini, core.ProviderElevenLabs, core.ProviderOpenAI, core.ProviderHume:
	default:
		return fmt.Errorf("%w: unknown tts provider %q", ErrInvalidConfig, c.TTS.Provider)
	}

	if c.TTS.Workers < 0 {
		return fmt.Errorf("%w: tts.workers must not be negative", ErrInvalidConfig)
	}

	if c.ESV.TimeoutSeconds < 0 || c.TTS.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}

	if c.Playback.DeviceSampleRate < 0 || c.Playback.DeviceChannels < 0 || c.Playback.FrameIntervalMS < 0 {
		return fmt.Errorf("%w: playback device settings must not be negative", ErrInvalidConfig)
	}

	return nil
}

// ESVTimeout is the text source request timeout.
func (c *Config) ESVTimeout() time.Duration {
	return time.Duration(c.ESV.TimeoutSeconds) * time.Second
}

// TTSTimeout is the provider request timeout.
func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

// FrameInterval is the playback progress period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Playback.FrameIntervalMS) * time.Millisecond
}
