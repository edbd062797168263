package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/daemon"
	"github.com/charlie0129/batmon/pkg/feed"
	"github.com/charlie0129/batmon/pkg/source"
	"github.com/charlie0129/batmon/pkg/version"
)

// loadConfig layers flags, environment and the config file.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	v, err := config.NewViper(fs)
	if err != nil {
		return nil, err
	}
	if err := config.ReadFile(v, configPath); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func closeSource(src source.Source) {
	c, ok := src.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logrus.Errorf("failed to close source %s: %v", src.Name(), err)
	}
}

func runDaemon(cmd *cobra.Command) error {
	conf, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle common process-killing signals, so we can gracefully shut down.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		select {
		case sig := <-sigc:
			logrus.Infof("caught signal \"%s\": shutting down.", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	src, err := source.Open(ctx, conf.Source, conf.SysfsDevice)
	if err != nil {
		return err
	}
	defer closeSource(src)

	f := feed.New(src, conf.PollFloor())

	logrus.WithFields(logrus.Fields{
		"version":   version.Version,
		"commit":    version.GitCommit,
		"source":    src.Name(),
		"pollFloor": f.Floor(),
	}).Info("batmon starting")

	d := daemon.New(daemon.Options{
		Config: conf,
		Feed:   f,
		Output: cmd.OutOrStdout(),
	})
	return d.Run(ctx)
}

// NewRunCommand runs the monitor in the foreground, the same as batmon
// without a subcommand.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"daemon"},
		Short:   "Run batmon in the foreground",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd)
		},
	}

	config.AddFlags(cmd.Flags())

	return cmd
}

// NewOnceCommand prints a single reading and exits.
func NewOnceCommand() *cobra.Command {
	timeout := 10 * time.Second

	cmd := &cobra.Command{
		Use:     "once",
		Short:   "Print the current battery state once",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			src, err := source.Open(ctx, conf.Source, conf.SysfsDevice)
			if err != nil {
				return err
			}
			defer closeSource(src)

			s, err := feed.New(src, 0).Read(ctx)
			if err != nil {
				return err
			}

			return daemon.NewPrinter(cmd.OutOrStdout()).Print(s)
		},
	}

	config.AddFlags(cmd.Flags())
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "give up reading the battery after this long")

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Version, version.GitCommit)
		},
	}
}
