package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the unit and removes its file.
func Uninstall(user bool) error {
	logrus.Infof("stopping batmon")

	if err := runSystemctl(user, "disable", "--now", UnitName); err != nil {
		return err
	}

	unitPath, err := UnitPath(user)
	if err != nil {
		return err
	}

	logrus.Infof("removing %s", unitPath)

	// if the file doesn't exist, we don't need to remove it
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", unitPath, err)
	}

	return runSystemctl(user, "daemon-reload")
}
