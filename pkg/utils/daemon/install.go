package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var systemctl = "systemctl"

// Install writes the unit file for the current executable and starts it.
// A system unit needs root.
func Install(configPath string, user bool) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unitPath, err := UnitPath(user)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing unit to %s", unitPath)
	if err := os.WriteFile(unitPath, []byte(RenderUnit(exePath, configPath, user)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting batmon")
	if err := runSystemctl(user, "daemon-reload"); err != nil {
		return err
	}
	return runSystemctl(user, "enable", "--now", UnitName)
}

func runSystemctl(user bool, args ...string) error {
	args = systemctlArgs(user, args...)
	out, err := exec.Command(systemctl, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v failed: %w: %s", systemctl, args, err, out)
	}
	return nil
}
