package source

import (
	"context"
	"math"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Battery queries the platform battery API through distatus/battery. It
// works on Linux, macOS, Windows and the BSDs but has no change
// notifications.
type Battery struct {
	getAll func() ([]*battery.Battery, error)
}

// NewBattery returns a Battery source.
func NewBattery() *Battery {
	return &Battery{getAll: battery.GetAll}
}

func (b *Battery) Name() string { return NameBattery }

func (b *Battery) Read(_ context.Context) (Reading, error) {
	batteries, err := b.getAll()
	if len(batteries) == 0 {
		if err == nil {
			err = pkgerrors.New("no batteries found")
		}
		return Reading{}, newError(NameBattery, "read", err)
	}
	if err != nil {
		// Partial errors only mean some fields could not be read.
		logrus.WithError(err).Debug("battery info partially unavailable")
	}

	// Only the primary battery is tracked.
	return readingFromBattery(batteries[0]), nil
}

// Capacities are mWh and the rate is mW.
func readingFromBattery(bat *battery.Battery) Reading {
	var r Reading
	if bat.Full > 0 {
		r.Percentage = bat.Current * 100 / bat.Full
	}

	rate := math.Abs(bat.ChargeRate)
	r.Wattage = rate / 1000

	switch bat.State {
	case battery.Charging:
		r.State = StateCharging
		r.TimeToFull = hoursToDuration(bat.Full-bat.Current, rate)
	case battery.Discharging:
		r.State = StateDischarging
		r.TimeToEmpty = hoursToDuration(bat.Current, rate)
	case battery.Full:
		r.State = StateFullyCharged
	default:
		r.State = StateUnknown
	}

	return r
}
