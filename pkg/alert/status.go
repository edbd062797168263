package alert

import "time"

// Status is a read-only view of the alert loop, published for the API.
type Status struct {
	Threshold   float64    `json:"threshold"`
	Enabled     bool       `json:"enabled"`
	Armed       bool       `json:"armed"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
	Fires       int        `json:"fires"`
}

// StatusOf describes t after it has fired fires times in total.
func StatusOf(t *Throttler, fires int) Status {
	st := Status{
		Threshold: t.threshold,
		Enabled:   t.enabled,
		Armed:     !t.fired,
		Fires:     fires,
	}
	if last, ok := t.LastFired(); ok {
		st.LastFiredAt = &last
	}
	return st
}
