package source

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	upowerDest        = "org.freedesktop.UPower"
	upowerPath        = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerDeviceIface = "org.freedesktop.UPower.Device"
	propertiesIface   = "org.freedesktop.DBus.Properties"
	propertiesChanged = propertiesIface + ".PropertiesChanged"
)

// UPower device states, see UpDeviceState.
const (
	upStateUnknown uint32 = iota
	upStateCharging
	upStateDischarging
	upStateEmpty
	upStateFullyCharged
	upStatePendingCharge
	upStatePendingDischarge
)

// UPower reads the UPower display device over the system bus.
type UPower struct {
	conn   *dbus.Conn
	path   dbus.ObjectPath
	device dbus.BusObject
}

var _ Notifier = &UPower{}

// NewUPower connects to the system bus and resolves the display device.
func NewUPower(ctx context.Context) (*UPower, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, newError(NameUPower, "connect", err)
	}

	var path dbus.ObjectPath
	err = conn.Object(upowerDest, upowerPath).
		CallWithContext(ctx, upowerDest+".GetDisplayDevice", 0).
		Store(&path)
	if err != nil {
		_ = conn.Close()
		return nil, newError(NameUPower, "get display device", err)
	}

	logrus.WithField("device", path).Debug("using upower display device")

	return &UPower{
		conn:   conn,
		path:   path,
		device: conn.Object(upowerDest, path),
	}, nil
}

func (u *UPower) Name() string { return NameUPower }

// Read fetches all device properties in one call.
func (u *UPower) Read(ctx context.Context) (Reading, error) {
	props := map[string]dbus.Variant{}
	err := u.device.CallWithContext(ctx, propertiesIface+".GetAll", 0, upowerDeviceIface).Store(&props)
	if err != nil {
		return Reading{}, newError(NameUPower, "read properties", err)
	}

	r, err := readingFromProperties(props)
	if err != nil {
		return Reading{}, newError(NameUPower, "decode properties", err)
	}
	return r, nil
}

// Notify subscribes to PropertiesChanged on the display device. Slow
// consumers lose notifications, which is fine since any pending one
// already triggers a fresh read.
func (u *UPower) Notify(ctx context.Context) (<-chan Change, error) {
	err := u.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(u.path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return nil, newError(NameUPower, "subscribe", err)
	}

	signals := make(chan *dbus.Signal, 16)
	u.conn.Signal(signals)

	out := make(chan Change, 4)
	go func() {
		defer close(out)
		defer u.conn.RemoveSignal(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					logrus.Warn("upower signal channel closed")
					return
				}
				for _, c := range changesFromSignal(u.path, sig) {
					select {
					case out <- c:
					default:
					}
				}
			}
		}
	}()

	return out, nil
}

// Close releases the bus connection.
func (u *UPower) Close() error {
	return u.conn.Close()
}

func readingFromProperties(props map[string]dbus.Variant) (Reading, error) {
	var (
		r       Reading
		state   uint32
		toFull  int64
		toEmpty int64
	)

	if err := storeProperty(props, "Percentage", &r.Percentage); err != nil {
		return Reading{}, err
	}
	if err := storeProperty(props, "EnergyRate", &r.Wattage); err != nil {
		return Reading{}, err
	}
	if err := storeProperty(props, "TimeToFull", &toFull); err != nil {
		return Reading{}, err
	}
	if err := storeProperty(props, "TimeToEmpty", &toEmpty); err != nil {
		return Reading{}, err
	}
	if err := storeProperty(props, "State", &state); err != nil {
		return Reading{}, err
	}

	r.TimeToFull = secondsToDuration(toFull)
	r.TimeToEmpty = secondsToDuration(toEmpty)
	r.State = stateFromUPower(state)

	return r, nil
}

func storeProperty(props map[string]dbus.Variant, name string, dst interface{}) error {
	v, ok := props[name]
	if !ok {
		return pkgerrors.Errorf("property %s missing", name)
	}
	if err := dbus.Store([]interface{}{v.Value()}, dst); err != nil {
		return pkgerrors.Wrapf(err, "property %s", name)
	}
	return nil
}

func secondsToDuration(s int64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

func stateFromUPower(s uint32) State {
	switch s {
	case upStateCharging:
		return StateCharging
	case upStateDischarging:
		return StateDischarging
	case upStateFullyCharged:
		return StateFullyCharged
	case upStatePendingCharge:
		return StateNotCharging
	default:
		return StateUnknown
	}
}

var changeProperties = map[string]Change{
	"Energy":       EnergyChanged,
	"Percentage":   PercentageChanged,
	"State":        StateChanged,
	"BatteryLevel": BatteryLevelChanged,
}

func changesFromSignal(path dbus.ObjectPath, sig *dbus.Signal) []Change {
	if sig == nil || sig.Path != path || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return nil
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != upowerDeviceIface {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	var changes []Change
	for name := range changed {
		if c, ok := changeProperties[name]; ok {
			changes = append(changes, c)
		}
	}
	return changes
}
