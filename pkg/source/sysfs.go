package source

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSysfsRoot is where the kernel exposes power supplies.
const DefaultSysfsRoot = "/sys/class/power_supply"

// Sysfs reads a power supply uevent file. It has no native change
// notifications, so it relies on the poll floor.
type Sysfs struct {
	device string
	path   string
}

// NewSysfs opens device under root. An empty device selects the first
// supply whose type is Battery.
func NewSysfs(root, device string) (*Sysfs, error) {
	if device == "" {
		var err error
		device, err = findBattery(root)
		if err != nil {
			return nil, newError(NameSysfs, "detect battery", err)
		}
	}

	path := filepath.Join(root, device, "uevent")
	if _, err := os.Stat(path); err != nil {
		return nil, newError(NameSysfs, "open "+device, err)
	}

	logrus.WithField("device", device).Debug("using sysfs power supply")

	return &Sysfs{device: device, path: path}, nil
}

func (s *Sysfs) Name() string { return NameSysfs }

func (s *Sysfs) Read(_ context.Context) (Reading, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return Reading{}, newError(NameSysfs, "read "+s.device, err)
	}

	ev, err := ParseUEvent(b)
	if err != nil {
		return Reading{}, newError(NameSysfs, "parse "+s.device, err)
	}

	r, err := ev.Reading()
	if err != nil {
		return Reading{}, newError(NameSysfs, "decode "+s.device, err)
	}
	return r, nil
}

func findBattery(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to list %s", root)
	}

	for _, entry := range entries {
		typ, err := os.ReadFile(filepath.Join(root, entry.Name(), "type"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(typ)) == "Battery" {
			return entry.Name(), nil
		}
	}

	return "", pkgerrors.Errorf("no battery found in %s", root)
}

// UEvent holds the POWER_SUPPLY_ keys of a uevent file, prefix stripped
// and lower-cased.
type UEvent map[string]string

// ParseUEvent parses KEY=VALUE lines. Keys without the POWER_SUPPLY_
// prefix are ignored.
func ParseUEvent(b []byte) (UEvent, error) {
	ev := UEvent{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, pkgerrors.Errorf("malformed line %q", line)
		}
		name, ok := strings.CutPrefix(key, "POWER_SUPPLY_")
		if !ok {
			continue
		}
		ev[strings.ToLower(name)] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}

func (ev UEvent) float(key string) (float64, bool) {
	v, ok := ev[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Reading converts the uevent into a Reading. Energies are µWh, power µW,
// charges µAh, currents µA and voltages µV.
func (ev UEvent) Reading() (Reading, error) {
	var r Reading

	energyNow, hasEnergyNow := ev.float("energy_now")
	energyFull, hasEnergyFull := ev.float("energy_full")
	chargeNow, hasChargeNow := ev.float("charge_now")
	chargeFull, hasChargeFull := ev.float("charge_full")
	capacity, hasCapacity := ev.float("capacity")

	switch {
	case hasEnergyNow && hasEnergyFull && energyFull > 0:
		r.Percentage = energyNow * 100 / energyFull
	case hasChargeNow && hasChargeFull && chargeFull > 0:
		r.Percentage = chargeNow * 100 / chargeFull
	case hasCapacity:
		r.Percentage = capacity
	default:
		return Reading{}, pkgerrors.New("no energy, charge or capacity keys")
	}

	// Rate in the same unit family as the level, per hour.
	var now, full, rate float64
	if power, ok := ev.float("power_now"); ok {
		r.Wattage = math.Abs(power) / 1e6
		now, full, rate = energyNow, energyFull, math.Abs(power)
	} else if current, ok := ev.float("current_now"); ok {
		voltage, _ := ev.float("voltage_now")
		r.Wattage = math.Abs(current) * voltage / 1e12
		now, full, rate = chargeNow, chargeFull, math.Abs(current)
	}

	switch ev["status"] {
	case "Charging":
		r.State = StateCharging
		r.TimeToFull = hoursToDuration(full-now, rate)
	case "Discharging":
		r.State = StateDischarging
		r.TimeToEmpty = hoursToDuration(now, rate)
	case "Full":
		r.State = StateFullyCharged
	case "Not charging":
		r.State = StateNotCharging
	default:
		r.State = StateUnknown
	}

	return r, nil
}

func hoursToDuration(amount, rate float64) time.Duration {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(amount / rate * float64(time.Hour)).Round(time.Second)
}
