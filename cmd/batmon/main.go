package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/batmon/pkg/alert"
	"github.com/charlie0129/batmon/pkg/client"
	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/source"
)

var (
	logLevel   = "info"
	configPath = config.DefaultConfigPath
)

var (
	gBasic        = "Basic:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	var srcErr *source.Error
	var cmdErr *alert.CommandError

	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: batmon daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running with --daemon-socket? Have you installed it?")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or run the daemon with '--allow-non-root-access' to grant permissions to your user")
	case errors.As(err, &srcErr):
		fmt.Fprintf(os.Stderr, "\nError: cannot read the battery from %s\n", srcErr.Source)
		fmt.Fprintln(os.Stderr, "Try another source with '--source' (upower, sysfs, battery)")
	case errors.As(err, &cmdErr):
		fmt.Fprintf(os.Stderr, "\nError: cannot run alert command %q\n", cmdErr.Command)
	}
}

func main() {
	// batmon mostly sleeps.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batmon",
		Short: "batmon prints battery state changes and runs a command when the battery is low",
		Long: `batmon prints battery state changes and runs a command when the battery is low.

Every distinct battery state is printed to stdout as one JSON line. When the
charge drops to the alert threshold, the alert command is run with sh -c.

Website: https://github.com/charlie0129/batmon
Report issues: https://github.com/charlie0129/batmon/issues`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd)
		},
	}

	config.AddFlags(cmd.Flags())

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewRunCommand(),
		NewOnceCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewVersionCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
