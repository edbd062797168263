package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/distatus/battery"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/batmon/pkg/snapshot"
)

const sampleUEvent = `POWER_SUPPLY_NAME=BAT0
POWER_SUPPLY_TYPE=Battery
POWER_SUPPLY_STATUS=Discharging
POWER_SUPPLY_PRESENT=1
POWER_SUPPLY_VOLTAGE_NOW=16821000
POWER_SUPPLY_POWER_NOW=19000000
POWER_SUPPLY_ENERGY_FULL=95040000
POWER_SUPPLY_ENERGY_NOW=76032000
POWER_SUPPLY_CAPACITY=80
`

func writeSupply(t *testing.T, root, name, typ, uevent string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte(typ+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0o644))
}

func TestSysfsRead(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "Mains", "POWER_SUPPLY_ONLINE=0\n")
	writeSupply(t, root, "BAT0", "Battery", sampleUEvent)

	src, err := NewSysfs(root, "")
	require.NoError(t, err)

	r, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 80.0, r.Percentage, 0.001)
	assert.InDelta(t, 19.0, r.Wattage, 0.001)
	assert.Equal(t, StateDischarging, r.State)
	// 76.032 Wh at 19 W
	assert.Equal(t, 4*time.Hour+6*time.Second, r.TimeToEmpty)
}

func TestSysfsNoBattery(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "Mains", "POWER_SUPPLY_ONLINE=1\n")

	_, err := NewSysfs(root, "")
	require.Error(t, err)

	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, NameSysfs, srcErr.Source)
}

func TestSysfsReadAfterRemoval(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT1", "Battery", sampleUEvent)

	src, err := NewSysfs(root, "BAT1")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "BAT1")))

	_, err = src.Read(context.Background())
	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
}

func TestUEventReading(t *testing.T) {
	tests := []struct {
		name    string
		uevent  string
		want    Reading
		wantErr bool
	}{
		{
			name: "charge based charging",
			uevent: `POWER_SUPPLY_STATUS=Charging
POWER_SUPPLY_CHARGE_FULL=4000000
POWER_SUPPLY_CHARGE_NOW=3000000
POWER_SUPPLY_CURRENT_NOW=2000000
POWER_SUPPLY_VOLTAGE_NOW=12000000`,
			want: Reading{
				Percentage: 75,
				Wattage:    24,
				State:      StateCharging,
				TimeToFull: 30 * time.Minute,
			},
		},
		{
			name:   "capacity only, full",
			uevent: "POWER_SUPPLY_STATUS=Full\nPOWER_SUPPLY_CAPACITY=100\n",
			want:   Reading{Percentage: 100, State: StateFullyCharged},
		},
		{
			name:   "not charging",
			uevent: "POWER_SUPPLY_STATUS=Not charging\nPOWER_SUPPLY_CAPACITY=80\n",
			want:   Reading{Percentage: 80, State: StateNotCharging},
		},
		{
			name:   "unknown status",
			uevent: "POWER_SUPPLY_STATUS=Weird\nPOWER_SUPPLY_CAPACITY=3\n",
			want:   Reading{Percentage: 3, State: StateUnknown},
		},
		{
			name:    "no level",
			uevent:  "POWER_SUPPLY_STATUS=Charging\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			uevent:  "POWER_SUPPLY_STATUS\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseUEvent([]byte(tt.uevent))
			if err == nil {
				var r Reading
				r, err = ev.Reading()
				if !tt.wantErr {
					require.NoError(t, err)
					assert.InDelta(t, tt.want.Percentage, r.Percentage, 0.001)
					assert.InDelta(t, tt.want.Wattage, r.Wattage, 0.001)
					assert.Equal(t, tt.want.State, r.State)
					assert.Equal(t, tt.want.TimeToFull, r.TimeToFull)
					assert.Equal(t, tt.want.TimeToEmpty, r.TimeToEmpty)
					return
				}
			}
			assert.True(t, tt.wantErr, "unexpected error: %v", err)
			assert.Error(t, err)
		})
	}
}

func upowerProps(percentage, rate float64, state uint32, toFull, toEmpty int64) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Percentage":  dbus.MakeVariant(percentage),
		"EnergyRate":  dbus.MakeVariant(rate),
		"State":       dbus.MakeVariant(state),
		"TimeToFull":  dbus.MakeVariant(toFull),
		"TimeToEmpty": dbus.MakeVariant(toEmpty),
		"Model":       dbus.MakeVariant("5B11B79217"),
	}
}

func TestReadingFromUPowerProperties(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
		want  snapshot.Status
	}{
		{
			name:  "charging",
			props: upowerProps(80, 38.763, 1, 1800, 0),
			want:  snapshot.Charging{TimeToFull: 30 * time.Minute},
		},
		{
			name:  "discharging",
			props: upowerProps(80, 12, 2, 0, 7200),
			want:  snapshot.Discharging{TimeToEmpty: 2 * time.Hour},
		},
		{name: "empty", props: upowerProps(0, 0, 3, 0, 0), want: snapshot.Unknown{}},
		{name: "fully charged", props: upowerProps(100, 0, 4, 0, 0), want: snapshot.FullyCharged{}},
		{name: "pending charge", props: upowerProps(80, 0, 5, 0, 0), want: snapshot.NotCharging{}},
		{name: "pending discharge", props: upowerProps(80, 0, 6, 0, 0), want: snapshot.Unknown{}},
		{name: "negative times", props: upowerProps(50, 1, 2, -1, -1), want: snapshot.Discharging{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := readingFromProperties(tt.props)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Snapshot(time.Now()).Status)
		})
	}
}

func TestReadingFromUPowerPropertiesMissing(t *testing.T) {
	props := upowerProps(80, 0, 1, 0, 0)
	delete(props, "EnergyRate")

	_, err := readingFromProperties(props)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EnergyRate")
}

func TestChangesFromSignal(t *testing.T) {
	path := dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")
	sig := &dbus.Signal{
		Path: path,
		Name: propertiesChanged,
		Body: []interface{}{
			upowerDeviceIface,
			map[string]dbus.Variant{
				"Percentage": dbus.MakeVariant(79.0),
				"UpdateTime": dbus.MakeVariant(uint64(1690380294)),
			},
			[]string{},
		},
	}

	assert.Equal(t, []Change{PercentageChanged}, changesFromSignal(path, sig))
	assert.Empty(t, changesFromSignal("/other", sig))

	sig.Body[0] = "org.freedesktop.UPower"
	assert.Empty(t, changesFromSignal(path, sig))
	assert.Empty(t, changesFromSignal(path, nil))
}

func TestBatteryRead(t *testing.T) {
	src := &Battery{getAll: func() ([]*battery.Battery, error) {
		return []*battery.Battery{{
			State:      battery.Charging,
			Current:    45000,
			Full:       90000,
			ChargeRate: 45000,
		}}, nil
	}}

	r, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, r.Percentage, 0.001)
	assert.InDelta(t, 45.0, r.Wattage, 0.001)
	assert.Equal(t, StateCharging, r.State)
	assert.Equal(t, time.Hour, r.TimeToFull)
}

func TestBatteryReadNoBatteries(t *testing.T) {
	src := &Battery{getAll: func() ([]*battery.Battery, error) { return nil, nil }}

	_, err := src.Read(context.Background())
	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, NameBattery, srcErr.Source)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), "bogus", "")
	require.Error(t, err)
}

func TestReadingSnapshotClamps(t *testing.T) {
	s := Reading{Percentage: 101.5, State: StateFullyCharged}.Snapshot(time.Unix(10, 0))
	assert.Equal(t, 100.0, s.Percentage)
	assert.Equal(t, snapshot.FullyCharged{}, s.Status)
	assert.Equal(t, time.Unix(10, 0), s.ObservedAt)
}
