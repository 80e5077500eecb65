// Package playback drives single-session verse playback with live progress.
//
// The engine is an explicit two-state machine (Idle, Playing). All
// transitions run under one mutex, so stopping the old session and starting
// the new one happen with no observable gap. The progress loop belongs to a
// session and is cancelled with it.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/book-expert/audio-bible/internal/audio"
	"github.com/book-expert/audio-bible/internal/cache"
	"github.com/book-expert/audio-bible/internal/metrics"
	"github.com/book-expert/logger"
)

// Setting limits and defaults.
const (
	MIN_RATE       = 0.5
	MAX_RATE       = 2.0
	DEFAULT_RATE   = 1.0
	MAX_PITCH      = 1200.0
	DEFAULT_FRAME  = 16 * time.Millisecond
	percentStopped = 0
)

// Sentinel errors.
var (
	ErrNoAudio        = errors.New("verse has no generated audio")
	ErrInvalidSeek    = errors.New("seek fraction must be within [0, 1]")
	ErrInvalidSetting = errors.New("invalid playback setting")
)

// Error and log formats.
const (
	errFmtNoAudio    = "%w: '%s'"
	errFmtLoad       = "load '%s': %w"
	errFmtDecode     = "decode '%s': %w"
	errFmtSeek       = "%w: got %v"
	errFmtRate       = "%w: rate must be between %.1f and %.1f, got %v"
	errFmtPitch      = "%w: pitch must be between -%.0f and %.0f cents, got %v"
	errFmtOpenOutput = "open output for '%s': %w"
	logFmtStarted    = "Playback %s started for '%s' at %.2fs (speed %.3f)"
	logFmtStopped    = "Playback %s stopped for '%s'"
	logFmtEnded      = "Playback %s ended for '%s'"
	logFmtCloseVoice = "Failed to close voice for '%s': %v"
)

// Library loads cached verses. cache.Store satisfies it.
type Library interface {
	Get(ctx context.Context, reference string) (cache.VerseRecord, error)
}

// Settings are applied to the next session that starts.
type Settings struct {
	Rate       float64
	PitchCents float64
}

// Options configure an Engine. Output and Library are required.
type Options struct {
	Output        Output
	Library       Library
	Listener      Listener
	Now           func() time.Time
	Metrics       *metrics.Metrics
	Log           *logger.Logger
	FrameInterval time.Duration
	Settings      Settings
}

// Engine owns the single playback slot.
type Engine struct {
	output   Output
	library  Library
	listener Listener
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *logger.Logger
	state    State
	voice    Voice
	cancel   context.CancelFunc
	settings Settings
	frame    time.Duration
	mu       sync.Mutex
}

// NewEngine creates an idle engine. Invalid initial settings are rejected.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DEFAULT_FRAME
	}

	if opts.Listener == nil {
		opts.Listener = func(Progress) {}
	}

	if opts.Settings.Rate == 0 {
		opts.Settings.Rate = DEFAULT_RATE
	}

	err := validateRate(opts.Settings.Rate)
	if err != nil {
		return nil, err
	}

	err = validatePitch(opts.Settings.PitchCents)
	if err != nil {
		return nil, err
	}

	return &Engine{
		output:   opts.Output,
		library:  opts.Library,
		listener: opts.Listener,
		now:      opts.Now,
		metrics:  opts.Metrics,
		log:      opts.Log,
		state:    Idle{},
		settings: opts.Settings,
		frame:    opts.FrameInterval,
	}, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Settings returns the settings the next session will use.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.settings
}

// SetRate sets the playback rate for subsequent sessions.
func (e *Engine) SetRate(rate float64) error {
	err := validateRate(rate)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.settings.Rate = rate
	e.mu.Unlock()

	return nil
}

// SetPitch sets the detune in cents for subsequent sessions.
func (e *Engine) SetPitch(cents float64) error {
	err := validatePitch(cents)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.settings.PitchCents = cents
	e.mu.Unlock()

	return nil
}

// Play toggles reference: if it is playing it stops and progress 0 is
// published. Otherwise the cached audio replaces any current session and
// plays from the start. On error the previous state is kept.
func (e *Engine) Play(ctx context.Context, reference string) error {
	e.mu.Lock()
	if playing, ok := e.state.(Playing); ok && playing.Session.Reference == reference {
		e.stopLocked()
		e.publish(reference, percentStopped, false)
		e.metrics.PlaybackEvent(metrics.EVENT_TOGGLE_STOP)
		e.mu.Unlock()

		return nil
	}
	e.mu.Unlock()

	buf, err := e.load(ctx, reference)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.startLocked(reference, buf, 0)
	if err != nil {
		return err
	}

	e.metrics.PlaybackEvent(metrics.EVENT_PLAY)

	return nil
}

// Seek restarts reference at fraction of its duration, replacing any current
// session whatever its reference.
func (e *Engine) Seek(ctx context.Context, reference string, fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return fmt.Errorf(errFmtSeek, ErrInvalidSeek, fraction)
	}

	buf, err := e.load(ctx, reference)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.startLocked(reference, buf, fraction*buf.Duration())
	if err != nil {
		return err
	}

	e.metrics.PlaybackEvent(metrics.EVENT_SEEK)

	return nil
}

// Stop ends the current session, if any. Calling it while idle does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	playing, ok := e.state.(Playing)
	if !ok {
		return
	}

	e.stopLocked()
	e.publish(playing.Session.Reference, percentStopped, false)
	e.metrics.PlaybackEvent(metrics.EVENT_STOP)
}

func (e *Engine) load(ctx context.Context, reference string) (audio.Buffer, error) {
	record, err := e.library.Get(ctx, reference)
	if errors.Is(err, cache.ErrNotFound) {
		return audio.Buffer{}, fmt.Errorf(errFmtNoAudio, ErrNoAudio, reference)
	}

	if err != nil {
		return audio.Buffer{}, fmt.Errorf(errFmtLoad, reference, err)
	}

	if !record.HasAudio() {
		return audio.Buffer{}, fmt.Errorf(errFmtNoAudio, ErrNoAudio, reference)
	}

	buf, err := audio.DecodeWAV(record.Audio.EncodedBytes)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf(errFmtDecode, reference, err)
	}

	return buf, nil
}

// startLocked replaces the current session with a new one at offset seconds.
func (e *Engine) startLocked(reference string, buf audio.Buffer, offset float64) error {
	session := Session{
		Reference:   reference,
		StartOffset: offset,
		Rate:        e.settings.Rate,
		PitchCents:  e.settings.PitchCents,
		Duration:    buf.Duration(),
		ID:          uuid.New(),
	}

	pcm := Render(buf, offset, session.Speed(), e.output.Format())

	voice, err := e.output.Open(bytes.NewReader(pcm))
	if err != nil {
		return fmt.Errorf(errFmtOpenOutput, reference, err)
	}

	e.stopLocked()

	session.StartedAt = e.now()
	voice.Play()

	loopCtx, cancel := context.WithCancel(context.Background())
	e.state = Playing{Session: session}
	e.voice = voice
	e.cancel = cancel

	e.publish(reference, session.Percent(session.StartedAt), true)
	e.log.Info(logFmtStarted, session.ID, reference, offset, session.Speed())

	go e.progressLoop(loopCtx, session.ID)

	return nil
}

func (e *Engine) stopLocked() {
	playing, ok := e.state.(Playing)
	if !ok {
		return
	}

	e.cancel()

	err := e.voice.Close()
	if err != nil {
		e.log.Warn(logFmtCloseVoice, playing.Session.Reference, err)
	}

	e.log.Info(logFmtStopped, playing.Session.ID, playing.Session.Reference)

	e.state = Idle{}
	e.voice = nil
	e.cancel = nil
}

func (e *Engine) progressLoop(ctx context.Context, id uuid.UUID) {
	ticker := time.NewTicker(e.frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.tick(id) {
				return
			}
		}
	}
}

// tick publishes progress for session id and reports whether the loop is done.
func (e *Engine) tick(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	playing, ok := e.state.(Playing)
	if !ok || playing.Session.ID != id {
		return true
	}

	now := e.now()
	session := playing.Session

	// The session ends when the output drains; the clock only drives progress.
	if !e.voice.IsPlaying() {
		e.stopLocked()
		e.publish(session.Reference, percentStopped, false)
		e.metrics.PlaybackEvent(metrics.EVENT_END)
		e.log.Info(logFmtEnded, session.ID, session.Reference)

		return true
	}

	e.publish(session.Reference, session.Percent(now), true)

	return false
}

func (e *Engine) publish(reference string, percent float64, playing bool) {
	e.listener(Progress{Reference: reference, Percent: percent, Playing: playing})
}

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate < MIN_RATE || rate > MAX_RATE {
		return fmt.Errorf(errFmtRate, ErrInvalidSetting, MIN_RATE, MAX_RATE, rate)
	}

	return nil
}

func validatePitch(cents float64) error {
	if math.IsNaN(cents) || math.Abs(cents) > MAX_PITCH {
		return fmt.Errorf(errFmtPitch, ErrInvalidSetting, MAX_PITCH, MAX_PITCH, cents)
	}

	return nil
}
