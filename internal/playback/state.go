package playback

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const centsPerOctave = 1200

// Session is the one active playback. Rate and PitchCents are the engine
// settings captured when the session started.
type Session struct {
	StartedAt   time.Time
	Reference   string
	StartOffset float64
	Rate        float64
	PitchCents  float64
	Duration    float64
	ID          uuid.UUID
}

// Speed is the playback-rate multiplier; pitch detune is applied as a rate change.
func (s Session) Speed() float64 {
	return SpeedFor(s.Rate, s.PitchCents)
}

// Elapsed is wall time since the session started plus the start offset, in
// seconds. Rate and pitch do not scale it.
func (s Session) Elapsed(now time.Time) float64 {
	return now.Sub(s.StartedAt).Seconds() + s.StartOffset
}

// Percent is the progress at now, capped at 100.
func (s Session) Percent(now time.Time) float64 {
	if s.Duration <= 0 {
		return 0
	}

	return math.Min(s.Elapsed(now)/s.Duration*100, 100)
}

// SpeedFor combines a rate and a detune in cents into one multiplier.
func SpeedFor(rate, cents float64) float64 {
	return rate * math.Pow(2, cents/centsPerOctave)
}

// State is either Idle or Playing.
type State interface {
	isState()
}

// Idle means no session exists.
type Idle struct{}

// Playing holds the current session.
type Playing struct {
	Session Session
}

func (Idle) isState()    {}
func (Playing) isState() {}

// Progress is published to the listener on every transition and frame.
type Progress struct {
	Reference string
	Percent   float64
	Playing   bool
}

// Listener receives progress updates. It runs with the engine lock held and
// must not call back into the engine.
type Listener func(Progress)
