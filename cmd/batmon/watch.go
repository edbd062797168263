package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/batmon/pkg/client"
	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow battery changes from a running batmon daemon",
		Long: `Follow battery changes from a running batmon daemon.

Prints the same JSON lines as the daemon, starting with the current state. Alert firings are printed as log lines.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := socketPath(cmd)
			if err != nil {
				return err
			}

			ch, err := client.NewClient(path).SubscribeEvents(cmd.Context())
			if err != nil {
				return err
			}

			for ev := range ch {
				switch ev.Name {
				case events.Snapshot:
					fmt.Fprintln(cmd.OutOrStdout(), string(ev.Data))
				case events.AlertFired:
					payload, err := events.DecodeAs[events.AlertFiredEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode alert.fired event")
						continue
					}
					logrus.WithFields(logrus.Fields{
						"percentage": payload.Percentage,
						"threshold":  payload.Threshold,
						"fires":      payload.Fires,
						"at":         time.Unix(payload.Ts, 0).Format(time.DateTime),
					}).Warn("battery low, alert fired")
				default:
					logrus.WithField("event", ev.Name).Debug("ignoring unknown event")
				}
			}

			logrus.Info("daemon closed the event stream")
			return nil
		},
	}

	cmd.Flags().String(config.KeyDaemonSocket, "", "batmon daemon unix socket path (default: from config, or "+defaultSocketPath+")")

	return cmd
}
