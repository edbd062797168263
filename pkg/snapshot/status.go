package snapshot

import "time"

// Status is the charging status of the battery. It is a closed set:
// Charging, Discharging, FullyCharged, NotCharging and Unknown are the only
// implementations.
type Status interface {
	// Type is the tag used in the canonical text.
	Type() string
	isStatus()
}

// Charging means power flows into the battery.
type Charging struct {
	TimeToFull time.Duration
}

// Discharging means the battery is powering the device.
type Discharging struct {
	TimeToEmpty time.Duration
}

// FullyCharged means the battery is full.
type FullyCharged struct{}

// NotCharging means AC is connected but the battery is not charging, usually
// because it is already above a charge limit.
type NotCharging struct{}

// Unknown is used when the source cannot tell.
type Unknown struct{}

func (Charging) Type() string     { return "charging" }
func (Discharging) Type() string  { return "discharging" }
func (FullyCharged) Type() string { return "fully_charged" }
func (NotCharging) Type() string  { return "not_charging" }
func (Unknown) Type() string      { return "unknown" }

func (Charging) isStatus()     {}
func (Discharging) isStatus()  {}
func (FullyCharged) isStatus() {}
func (NotCharging) isStatus()  {}
func (Unknown) isStatus()      {}
