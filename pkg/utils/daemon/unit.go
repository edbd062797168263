package daemon

import (
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	UnitName = "batmon.service"

	systemUnitDir = "/etc/systemd/system"
)

// unitTemplate is filled by RenderUnit.
const unitTemplate = `[Unit]
Description=batmon battery monitor
Documentation=https://github.com/charlie0129/batmon
After=upower.service

[Service]
Type=simple
ExecStart="/path/to/batmon" run --config "/path/to/config"
Restart=on-failure
RestartSec=5

[Install]
WantedBy={{target}}
`

// UnitPath returns where the unit file lives. User units go under the
// XDG config directory of the current user.
func UnitPath(user bool) (string, error) {
	if !user {
		return filepath.Join(systemUnitDir, UnitName), nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to find user config directory")
	}
	return filepath.Join(dir, "systemd", "user", UnitName), nil
}

// RenderUnit returns the unit file running exePath with configPath.
func RenderUnit(exePath, configPath string, user bool) string {
	target := "multi-user.target"
	if user {
		target = "default.target"
	}

	return strings.NewReplacer(
		"/path/to/batmon", exePath,
		"/path/to/config", configPath,
		"{{target}}", target,
	).Replace(unitTemplate)
}

func systemctlArgs(user bool, args ...string) []string {
	if user {
		return append([]string{"--user"}, args...)
	}
	return args
}
