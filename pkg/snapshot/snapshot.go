package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ErrSerialization is returned when a snapshot cannot be rendered into its
// canonical text. It only happens for malformed snapshots, e.g. a nil Status.
var ErrSerialization = pkgerrors.New("snapshot serialization failed")

// Snapshot is a single battery reading. It is immutable once built by New.
type Snapshot struct {
	Percentage float64
	Wattage    float64
	Status     Status
	// ObservedAt is when the reading was taken. It is ignored by Equal.
	ObservedAt time.Time
}

// New builds a Snapshot, clamping percentage into [0, 100].
func New(percentage, wattage float64, status Status, observedAt time.Time) Snapshot {
	if status == nil {
		status = Unknown{}
	}
	return Snapshot{
		Percentage: ClampPercentage(percentage),
		Wattage:    wattage,
		Status:     status,
		ObservedAt: observedAt,
	}
}

// ClampPercentage forces p into [0, 100]. NaN becomes 0.
func ClampPercentage(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Equal compares the battery state of two snapshots, ignoring ObservedAt.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Percentage == o.Percentage &&
		s.Wattage == o.Wattage &&
		s.Status == o.Status
}

// canonical is the wire form of a Snapshot. Field order is key order.
type canonical struct {
	Percentage  uint64 `json:"percentage"`
	Wattage     uint64 `json:"wattage"`
	Type        string `json:"type"`
	TimeToFull  string `json:"time_to_full,omitempty"`
	TimeToEmpty string `json:"time_to_empty,omitempty"`
}

// MarshalJSON renders the canonical text form of the snapshot, e.g.
//
//	{"percentage":43,"wattage":12,"type":"charging","time_to_full":"1.5h"}
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Status == nil {
		return nil, pkgerrors.Wrap(ErrSerialization, "snapshot has no status")
	}

	c := canonical{
		Percentage: WholeNumber(s.Percentage),
		Wattage:    WholeNumber(s.Wattage),
		Type:       s.Status.Type(),
	}
	switch st := s.Status.(type) {
	case Charging:
		c.TimeToFull = HumanDuration(st.TimeToFull)
	case Discharging:
		c.TimeToEmpty = HumanDuration(st.TimeToEmpty)
	}

	b, err := json.Marshal(c)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrSerialization, "%v", err)
	}
	return b, nil
}

// Canonical returns the canonical text of the snapshot as a string.
func (s Snapshot) Canonical() (string, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WholeNumber rounds f half away from zero and saturates it into the
// unsigned range. Negative values and NaN become 0.
func WholeNumber(f float64) uint64 {
	r := math.Round(f)
	switch {
	case math.IsNaN(r) || r <= 0:
		return 0
	case r >= math.MaxUint64:
		return math.MaxUint64
	}
	return uint64(r)
}

// HumanDuration renders d as "<s>s" under a minute, "<m>m" under an hour
// and "<h.h>h" otherwise. Sub-second precision is dropped.
func HumanDuration(d time.Duration) string {
	secs := uint64(0)
	if d > 0 {
		secs = uint64(d / time.Second)
	}

	if secs >= 3600 {
		// Single precision, so 3780s is "1.0h".
		hours := float32(secs) / 3600
		return strconv.FormatFloat(float64(hours), 'f', 1, 32) + "h"
	}
	if secs >= 60 {
		return strconv.FormatUint(secs/60, 10) + "m"
	}
	return strconv.FormatUint(secs, 10) + "s"
}
