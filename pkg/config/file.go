package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RawFileConfig is the on-disk and over-the-wire form of Config. Durations
// are Go duration strings.
type RawFileConfig struct {
	MinPollInterval     *string  `json:"min-poll-interval,omitempty"`
	AlertThreshold      *float64 `json:"alert-threshold,omitempty"`
	AlertCommand        *string  `json:"alert-command,omitempty"`
	AlertRefireInterval *string  `json:"alert-refire-interval,omitempty"`
	Source              *string  `json:"source,omitempty"`
	SysfsDevice         *string  `json:"sysfs-device,omitempty"`
	DaemonSocket        *string  `json:"daemon-socket,omitempty"`
	AllowNonRootAccess  *bool    `json:"allow-non-root-access,omitempty"`
}

func ptrTo[T any](v T) *T {
	return &v
}

func NewRawFileConfigFromConfig(c *Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	raw := &RawFileConfig{
		MinPollInterval:     ptrTo(c.MinPollInterval.String()),
		AlertThreshold:      ptrTo(c.AlertThreshold),
		AlertRefireInterval: ptrTo(c.AlertRefireInterval.String()),
		Source:              ptrTo(c.Source),
		AllowNonRootAccess:  ptrTo(c.AllowNonRootAccess),
	}
	if c.AlertCommand != "" {
		raw.AlertCommand = ptrTo(c.AlertCommand)
	}
	if c.SysfsDevice != "" {
		raw.SysfsDevice = ptrTo(c.SysfsDevice)
	}
	if c.DaemonSocket != "" {
		raw.DaemonSocket = ptrTo(c.DaemonSocket)
	}

	return raw, nil
}

// Save writes the config to path, creating its directory if needed.
func (r *RawFileConfig) Save(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create config directory")
	}

	if err := os.WriteFile(path, append(b, '\n'), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config file %s", path)
	}

	logrus.WithField("path", path).Debug("config saved")
	return nil
}
