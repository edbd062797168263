package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/batmon/pkg/alert"
	"github.com/charlie0129/batmon/pkg/client"
	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/version"
)

const defaultSocketPath = "/run/batmon.sock"

type statusData struct {
	Snapshot *client.Snapshot      `json:"snapshot"`
	Alert    *alert.Status         `json:"alert"`
	Config   *config.RawFileConfig `json:"config"`
}

// socketPath resolves the daemon socket from flags, environment and the
// config file the daemon reads.
func socketPath(cmd *cobra.Command) (string, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return "", err
	}
	if err := config.ReadFile(v, configPath); err != nil {
		return "", err
	}
	if p := v.GetString(config.KeyDaemonSocket); p != "" {
		return p, nil
	}
	return defaultSocketPath, nil
}

// fetchStatusData gathers all data required for the status command from the
// daemon. With wait, it blocks until the daemon publishes a new reading.
func fetchStatusData(cmd *cobra.Command, apiClient *client.Client, wait bool) (*statusData, error) {
	ctx := cmd.Context()

	getSnapshot := apiClient.GetSnapshot
	if wait {
		getSnapshot = apiClient.WaitSnapshot
	}
	s, err := getSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get battery snapshot: %w", err)
	}

	st, err := apiClient.GetAlertStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert status: %w", err)
	}

	conf, err := apiClient.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{Snapshot: s, Alert: st, Config: conf}, nil
}

func checkDaemonVersion(cmd *cobra.Command, apiClient *client.Client) {
	daemonVersion, err := apiClient.GetVersion(cmd.Context())
	if err != nil {
		logrus.WithError(err).Debug("failed to get daemon version")
		return
	}
	if daemonVersion != version.Version {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading batmon.")
	}
}

func NewStatusCommand() *cobra.Command {
	asJSON := false
	wait := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of a running batmon daemon",
		Long:    `Get battery state, alert state and configuration from a batmon daemon serving its API on a unix socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := socketPath(cmd)
			if err != nil {
				return err
			}
			apiClient := client.NewClient(path)

			data, err := fetchStatusData(cmd, apiClient, wait)
			if err != nil {
				return err
			}
			checkDaemonVersion(cmd, apiClient)

			if asJSON {
				b, err := json.MarshalIndent(data, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().String(config.KeyDaemonSocket, "", "batmon daemon unix socket path (default: from config, or "+defaultSocketPath+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the next battery reading before printing")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	s := data.Snapshot

	cmd.Println(bold("Battery status:"))
	cmd.Printf("  Current charge: %s\n", bold("%d%%", s.Percentage))

	state := s.Type
	switch s.Type {
	case "charging":
		state = color.GreenString("charging")
	case "discharging":
		state = color.RedString("discharging")
	case "fully_charged":
		state = "full"
	case "not_charging":
		state = "not charging"
	}
	cmd.Printf("  State: %s\n", bold("%s", state))
	cmd.Printf("  Power: %s\n", bold("%d W", s.Wattage))
	if s.TimeToFull != "" {
		cmd.Printf("  Time to full: %s\n", bold("%s", s.TimeToFull))
	}
	if s.TimeToEmpty != "" {
		cmd.Printf("  Time to empty: %s\n", bold("%s", s.TimeToEmpty))
	}

	cmd.Println()

	st := data.Alert
	cmd.Println(bold("Low battery alert:"))
	cmd.Printf("  Enabled: %s\n", bool2Text(st.Enabled))
	cmd.Printf("  Threshold: %s\n", bold("%g%%", st.Threshold))
	if st.Enabled {
		cmd.Printf("  Armed: %s\n", bool2Text(st.Armed))
		last := "never"
		if st.LastFiredAt != nil {
			last = st.LastFiredAt.Format(time.DateTime)
		}
		cmd.Printf("  Last fired: %s\n", bold("%s", last))
		cmd.Printf("  Times fired: %s\n", bold("%d", st.Fires))
	}

	cmd.Println()

	c := data.Config
	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Source: %s\n", bold("%s", deref(c.Source)))
	cmd.Printf("  Minimum poll interval: %s\n", bold("%s", deref(c.MinPollInterval)))
	if c.AlertCommand != nil {
		cmd.Printf("  Alert command: %s\n", bold("%s", *c.AlertCommand))
	}
	refire := deref(c.AlertRefireInterval)
	if refire == "0s" {
		refire = "once per crossing"
	}
	cmd.Printf("  Alert refire interval: %s\n", bold("%s", refire))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(c.AllowNonRootAccess != nil && *c.AllowNonRootAccess))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
