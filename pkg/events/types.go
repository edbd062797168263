package events

import "encoding/json"

// Event name constants
const (
	// Snapshot carries the canonical JSON of a snapshot that was printed.
	Snapshot = "snapshot"
	// AlertFired carries an AlertFiredEvent.
	AlertFired = "alert.fired"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// AlertFiredEvent is the typed payload for alert.fired.
type AlertFiredEvent struct {
	Percentage float64 `json:"percentage"`
	Threshold  float64 `json:"threshold"`
	Fires      int     `json:"fires"`
	Ts         int64   `json:"ts"`
}

// DecodeAs decodes the event payload into T, ignoring the event name. Empty
// data decodes to the zero value.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
