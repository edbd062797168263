package alert

import (
	"time"
)

// Decision is the outcome of feeding a percentage to the Throttler.
type Decision int

const (
	Suppress Decision = iota
	Fire
)

func (d Decision) String() string {
	if d == Fire {
		return "fire"
	}
	return "suppress"
}

// Throttler decides when a low battery reading should trigger the alert
// command.
//
// Readings above the threshold re-arm it. While at or below the threshold
// it fires once, then again every refire interval. With no refire interval
// it stays quiet until re-armed.
type Throttler struct {
	threshold float64
	refire    time.Duration
	enabled   bool

	fired     bool
	lastFired time.Time
}

// NewThrottler returns an armed Throttler. enabled reports whether there is
// an alert command at all; a disabled Throttler never fires. A refire of 0
// means fire once per crossing.
func NewThrottler(threshold float64, refire time.Duration, enabled bool) *Throttler {
	return &Throttler{
		threshold: threshold,
		refire:    refire,
		enabled:   enabled,
	}
}

// Decide feeds percentage p observed at now.
func (t *Throttler) Decide(p float64, now time.Time) Decision {
	if p > t.threshold {
		t.fired = false
		t.lastFired = time.Time{}
		return Suppress
	}

	if !t.enabled {
		return Suppress
	}

	if !t.fired {
		t.fired = true
		t.lastFired = now
		return Fire
	}

	if t.refire > 0 && now.Sub(t.lastFired) >= t.refire {
		t.lastFired = now
		return Fire
	}

	return Suppress
}

// LastFired returns when the throttler last fired since it was armed.
func (t *Throttler) LastFired() (time.Time, bool) {
	return t.lastFired, t.fired
}

// Threshold returns the configured threshold.
func (t *Throttler) Threshold() float64 {
	return t.threshold
}
