package alert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/metrics"
	"github.com/charlie0129/batmon/pkg/snapshot"
)

// Runner runs the alert command for a low battery snapshot and waits for
// it to finish.
type Runner interface {
	Run(ctx context.Context, s snapshot.Snapshot) error
}

// CommandError means the alert command could not be started or waited
// for. A command that runs and exits non-zero is not a CommandError.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("alert command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ShellRunner runs Command with "sh -c". The command's output goes to the
// log, never to stdout.
type ShellRunner struct {
	Shell     string
	Command   string
	Threshold float64
}

// NewShellRunner returns a runner using /bin/sh.
func NewShellRunner(command string, threshold float64) *ShellRunner {
	return &ShellRunner{
		Shell:     "/bin/sh",
		Command:   command,
		Threshold: threshold,
	}
}

func (r *ShellRunner) Run(ctx context.Context, s snapshot.Snapshot) error {
	entry := logrus.WithFields(logrus.Fields{
		"command":    r.Command,
		"percentage": s.Percentage,
		"threshold":  r.Threshold,
	})

	cmd := exec.CommandContext(ctx, r.Shell, "-c", r.Command)
	cmd.Env = append(os.Environ(),
		"BATMON_PERCENTAGE="+strconv.FormatUint(snapshot.WholeNumber(s.Percentage), 10),
		"BATMON_STATUS="+s.Status.Type(),
		"BATMON_THRESHOLD="+strconv.FormatFloat(r.Threshold, 'f', -1, 64),
	)

	stdout := entry.WriterLevel(logrus.InfoLevel)
	defer stdout.Close()
	stderr := entry.WriterLevel(logrus.WarnLevel)
	defer stderr.Close()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children of the shell may keep the output pipes open after it is killed.
	cmd.WaitDelay = 2 * time.Second

	entry.Info("battery low, running alert command")
	metrics.AlertFired()

	start := time.Now()
	err := cmd.Run()
	entry = entry.WithField("duration", time.Since(start).Round(time.Millisecond))

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		entry.Debug("alert command finished")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &exitErr):
		metrics.AlertCommandFailed()
		entry.WithField("exitCode", exitErr.ExitCode()).Warn("alert command exited with non-zero status")
		return nil
	default:
		return &CommandError{Command: r.Command, Err: err}
	}
}
