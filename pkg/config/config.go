package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/charlie0129/batmon/pkg/source"
)

const (
	KeyMinPollInterval     = "min-poll-interval"
	KeyAlertThreshold      = "alert-threshold"
	KeyAlertCommand        = "alert-command"
	KeyAlertRefireInterval = "alert-refire-interval"
	KeySource              = "source"
	KeySysfsDevice         = "sysfs-device"
	KeyDaemonSocket        = "daemon-socket"
	KeyAllowNonRootAccess  = "allow-non-root-access"

	// EnvPrefix prefixes environment overrides, e.g. BATMON_ALERT_THRESHOLD.
	EnvPrefix = "BATMON"
)

var (
	DefaultConfigPath      = "/etc/batmon.json"
	DefaultMinPollInterval = 30 * time.Second
	DefaultAlertThreshold  = 10.0
)

// Config is the read-only configuration of a batmon run.
type Config struct {
	// MinPollInterval forces a fresh read at least this often. 0 disables
	// polling.
	MinPollInterval time.Duration
	// AlertThreshold is the percentage at or below which the alert fires.
	AlertThreshold float64
	// AlertCommand is run with sh -c. Empty disables alerts.
	AlertCommand string
	// AlertRefireInterval re-runs the command while the battery stays low.
	// 0 means once per crossing.
	AlertRefireInterval time.Duration

	Source             string
	SysfsDevice        string
	DaemonSocket       string
	AllowNonRootAccess bool
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.VarP(newDurationFlag(DefaultMinPollInterval), KeyMinPollInterval, "i",
		"read the battery at least this often even without change notifications (0 to only rely on notifications)")
	fs.Float64P(KeyAlertThreshold, "t", DefaultAlertThreshold,
		"run the alert command when the battery percentage is at or below this value")
	fs.StringP(KeyAlertCommand, "c", "",
		"command to run (with sh -c) when the battery percentage is at or below the threshold")
	fs.VarP(newDurationFlag(0), KeyAlertRefireInterval, "r",
		"run the alert command again after this long while the battery stays low (0 to run once per crossing)")
	fs.String(KeySource, source.NameAuto,
		"battery source (auto, upower, sysfs, battery)")
	fs.String(KeySysfsDevice, "",
		"power supply name under /sys/class/power_supply for the sysfs source (default: first battery)")
	fs.String(KeyDaemonSocket, "",
		"serve the local API on this unix socket (empty to disable)")
	fs.Bool(KeyAllowNonRootAccess, false,
		"allow non-root users to access the API socket")
}

// NewViper returns a viper instance with defaults, environment overrides
// and, when fs is not nil, flag bindings.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyMinPollInterval, DefaultMinPollInterval)
	v.SetDefault(KeyAlertThreshold, DefaultAlertThreshold)
	v.SetDefault(KeySource, source.NameAuto)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to bind flags")
		}
	}

	return v, nil
}

// ReadFile merges the config file at path into v. A missing file is not an
// error.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	err := v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logrus.WithField("path", path).Debug("config file loaded")
		return nil
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		logrus.WithField("path", path).Debug("config file not found, using defaults")
		return nil
	default:
		return pkgerrors.Wrapf(err, "failed to read config file %s", path)
	}
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	minPoll, err := durationValue(v, KeyMinPollInterval)
	if err != nil {
		return nil, err
	}
	refire, err := durationValue(v, KeyAlertRefireInterval)
	if err != nil {
		return nil, err
	}

	c := &Config{
		MinPollInterval:     minPoll,
		AlertThreshold:      v.GetFloat64(KeyAlertThreshold),
		AlertCommand:        strings.TrimSpace(v.GetString(KeyAlertCommand)),
		AlertRefireInterval: refire,
		Source:              v.GetString(KeySource),
		SysfsDevice:         v.GetString(KeySysfsDevice),
		DaemonSocket:        v.GetString(KeyDaemonSocket),
		AllowNonRootAccess:  v.GetBool(KeyAllowNonRootAccess),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// durationValue accepts Go durations ("90s", "1m30s") and bare numbers,
// which are seconds.
func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	switch raw := v.Get(key).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return raw, nil
	case int:
		return time.Duration(raw) * time.Second, nil
	case int64:
		return time.Duration(raw) * time.Second, nil
	case float64:
		return time.Duration(raw * float64(time.Second)), nil
	case string:
		d, err := ParseDuration(raw)
		if err != nil {
			return 0, pkgerrors.Wrapf(err, "invalid %s", key)
		}
		return d, nil
	default:
		return 0, pkgerrors.Errorf("invalid %s: unsupported value %v", key, raw)
	}
}

// ParseDuration parses a Go duration or a bare number of seconds. An empty
// string is 0.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// durationFlag is a pflag.Value that takes the same forms as the config
// file, so "-r 60" and "-r 1m" are the same.
type durationFlag time.Duration

func newDurationFlag(d time.Duration) *durationFlag {
	f := durationFlag(d)
	return &f
}

func (f *durationFlag) String() string {
	return time.Duration(*f).String()
}

func (f *durationFlag) Set(s string) error {
	d, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*f = durationFlag(d)
	return nil
}

func (f *durationFlag) Type() string {
	return "duration"
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		return pkgerrors.Errorf("%s must be between 0 and 100, got %v", KeyAlertThreshold, c.AlertThreshold)
	}
	if c.MinPollInterval < 0 {
		return pkgerrors.Errorf("%s must not be negative, got %s", KeyMinPollInterval, c.MinPollInterval)
	}
	if c.AlertRefireInterval < 0 {
		return pkgerrors.Errorf("%s must not be negative, got %s", KeyAlertRefireInterval, c.AlertRefireInterval)
	}

	switch c.Source {
	case source.NameAuto, source.NameUPower, source.NameSysfs, source.NameBattery:
	default:
		return pkgerrors.Errorf("unknown %s %q", KeySource, c.Source)
	}

	return nil
}

// PollFloor is the poll interval the change feed must honor. When both the
// minimum poll interval and the refire interval are set, the smaller wins
// so the percentage is sampled often enough for refires to happen on time.
// 0 means native notifications only.
func (c *Config) PollFloor() time.Duration {
	switch {
	case c.MinPollInterval > 0 && c.AlertRefireInterval > 0:
		return min(c.MinPollInterval, c.AlertRefireInterval)
	case c.MinPollInterval > 0:
		return c.MinPollInterval
	default:
		return c.AlertRefireInterval
	}
}

// AlertEnabled reports whether an alert command is configured.
func (c *Config) AlertEnabled() bool {
	return c.AlertCommand != ""
}

func (c *Config) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"minPollInterval":     c.MinPollInterval,
		"pollFloor":           c.PollFloor(),
		"alertThreshold":      c.AlertThreshold,
		"alertCommand":        c.AlertCommand,
		"alertRefireInterval": c.AlertRefireInterval,
		"source":              c.Source,
		"sysfsDevice":         c.SysfsDevice,
		"daemonSocket":        c.DaemonSocket,
		"allowNonRootAccess":  c.AllowNonRootAccess,
	}
}
