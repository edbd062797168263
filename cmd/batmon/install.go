package main

import (
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/batmon/pkg/config"
	daemonutils "github.com/charlie0129/batmon/pkg/utils/daemon"
)

// userSocketPath puts the socket of a user unit in the runtime directory.
func userSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "batmon.sock")
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	user := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install batmon as a systemd service",
		GroupID: gInstallation,
		Long: `Install batmon as a systemd service.

This makes batmon run in the background and automatically start on boot (or login, with --user). The current flags are written to the config file, which the service reads on start.

A system-wide service needs root. Alert commands that talk to your desktop session, e.g. notify-send, usually need --user.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user && !cmd.Flag("config").Changed {
				dir, err := os.UserConfigDir()
				if err != nil {
					return pkgerrors.Wrapf(err, "failed to find user config directory")
				}
				configPath = filepath.Join(dir, "batmon.json")
			}

			conf, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			if conf.DaemonSocket == "" {
				conf.DaemonSocket = defaultSocketPath
				if user {
					conf.DaemonSocket = userSocketPath()
				}
			}

			raw, err := config.NewRawFileConfigFromConfig(conf)
			if err != nil {
				return err
			}
			if err := raw.Save(configPath); err != nil {
				if os.Geteuid() != 0 && !user {
					logrus.Errorf("you must run this command as root, or use --user")
				}
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			if err := daemonutils.Install(configPath, user); err != nil {
				if os.Geteuid() != 0 && !user {
					logrus.Errorf("you must run this command as root, or use --user")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `batmon install' again.\n", exePath)

			return nil
		},
	}

	config.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&user, "user", false, "Install a systemd user service instead of a system-wide one.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	user := false

	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the batmon systemd service",
		GroupID: gInstallation,
		Long: `Uninstall the batmon systemd service.

This stops batmon and removes its unit file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := daemonutils.Uninstall(user); err != nil {
				if os.Geteuid() != 0 && !user {
					logrus.Errorf("you must run this command as root, or use --user")
				}
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			logrus.Infof("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `batmon' again. If you want a complete uninstall, you can remove both config file and batmon itself manually.\n", configPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Uninstall the systemd user service.")

	return cmd
}
