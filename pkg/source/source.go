package source

import (
	"context"
	"fmt"
	"runtime"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/snapshot"
)

// State is the charging state as reported by a source.
type State int

const (
	StateUnknown State = iota
	StateCharging
	StateDischarging
	StateFullyCharged
	StateNotCharging
)

func (s State) String() string {
	switch s {
	case StateCharging:
		return "charging"
	case StateDischarging:
		return "discharging"
	case StateFullyCharged:
		return "fully-charged"
	case StateNotCharging:
		return "not-charging"
	default:
		return "unknown"
	}
}

// Reading is a raw battery reading as produced by a Source. Values are not
// validated; Snapshot clamps them.
type Reading struct {
	Percentage  float64
	Wattage     float64
	State       State
	TimeToFull  time.Duration
	TimeToEmpty time.Duration
}

// Snapshot converts r into a snapshot taken at t.
func (r Reading) Snapshot(t time.Time) snapshot.Snapshot {
	var status snapshot.Status
	switch r.State {
	case StateCharging:
		status = snapshot.Charging{TimeToFull: r.TimeToFull}
	case StateDischarging:
		status = snapshot.Discharging{TimeToEmpty: r.TimeToEmpty}
	case StateFullyCharged:
		status = snapshot.FullyCharged{}
	case StateNotCharging:
		status = snapshot.NotCharging{}
	default:
		status = snapshot.Unknown{}
	}
	return snapshot.New(r.Percentage, r.Wattage, status, t)
}

// Change is a category of native change notification.
type Change int

const (
	EnergyChanged Change = iota
	PercentageChanged
	StateChanged
	BatteryLevelChanged
)

func (c Change) String() string {
	switch c {
	case EnergyChanged:
		return "energy"
	case PercentageChanged:
		return "percentage"
	case StateChanged:
		return "state"
	case BatteryLevelChanged:
		return "battery-level"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

// Source reads the primary battery.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Read performs one fresh read.
	Read(ctx context.Context) (Reading, error)
}

// Notifier is implemented by sources that can signal changes natively.
// The returned channel is closed when the subscription ends, either
// because ctx is done or because the underlying transport failed.
type Notifier interface {
	Notify(ctx context.Context) (<-chan Change, error)
}

// Error is a failure to read from, or subscribe to, a source. It is fatal
// for the monitor.
type Error struct {
	Source string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(src, op string, err error) error {
	return &Error{Source: src, Op: op, Err: err}
}

const (
	NameAuto    = "auto"
	NameUPower  = "upower"
	NameSysfs   = "sysfs"
	NameBattery = "battery"
)

// Open returns the source called name. For "auto", UPower is tried first,
// then sysfs (Linux only), then the portable battery library.
func Open(ctx context.Context, name, sysfsDevice string) (Source, error) {
	switch name {
	case NameUPower:
		return NewUPower(ctx)
	case NameSysfs:
		return NewSysfs(DefaultSysfsRoot, sysfsDevice)
	case NameBattery:
		return NewBattery(), nil
	case NameAuto, "":
	default:
		return nil, pkgerrors.Errorf("unknown source %q", name)
	}

	up, err := NewUPower(ctx)
	if err == nil {
		return up, nil
	}
	logrus.WithError(err).Debug("upower unavailable")

	if runtime.GOOS == "linux" {
		fs, err := NewSysfs(DefaultSysfsRoot, sysfsDevice)
		if err == nil {
			return fs, nil
		}
		logrus.WithError(err).Debug("sysfs power supply unavailable")
	}

	return NewBattery(), nil
}
