package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/charlie0129/batmon/pkg/alert"
	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/events"
	"github.com/charlie0129/batmon/pkg/monitor"
	"github.com/charlie0129/batmon/pkg/watch"
)

// Options configures a Daemon. Config and Feed are required.
type Options struct {
	Config *config.Config
	Feed   monitor.Feeder
	// Runner runs the alert command. When nil and an alert command is
	// configured, a shell runner is used.
	Runner alert.Runner
	// Output receives one line per distinct snapshot. Defaults to stdout.
	Output io.Writer
}

// Daemon runs the monitor, the print loop, the alert loop and, when a
// socket is configured, the local API, until one of them fails.
type Daemon struct {
	conf    *config.Config
	monitor *monitor.Monitor
	printer *Printer
	runner  alert.Runner
	alerts  *watch.Value[alert.Status]
	hub     *events.EventHub
	now     func() time.Time
}

func New(opts Options) *Daemon {
	runner := opts.Runner
	if runner == nil && opts.Config.AlertEnabled() {
		runner = alert.NewShellRunner(opts.Config.AlertCommand, opts.Config.AlertThreshold)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	return &Daemon{
		conf:    opts.Config,
		monitor: monitor.New(opts.Feed),
		printer: NewPrinter(out),
		runner:  runner,
		alerts:  watch.New[alert.Status](),
		hub:     events.NewEventHub(),
		now:     time.Now,
	}
}

// Monitor returns the monitor the daemon publishes to.
func (d *Daemon) Monitor() *monitor.Monitor {
	return d.monitor
}

// AlertStatus returns the latest state of the alert loop.
func (d *Daemon) AlertStatus() alert.Status {
	st, _ := d.alerts.Load()
	return st
}

// Run blocks until ctx is cancelled or any task fails. It returns nil on
// cancellation and the first task error otherwise.
func (d *Daemon) Run(ctx context.Context) error {
	logrus.WithFields(d.conf.LogrusFields()).Info("daemon starting")

	// Cursors must exist before the monitor publishes its first reading.
	printCursor := d.monitor.Subscribe()
	alertCursor := d.monitor.Subscribe()
	throttler := alert.NewThrottler(d.conf.AlertThreshold, d.conf.AlertRefireInterval, d.conf.AlertEnabled())
	d.alerts.Publish(alert.StatusOf(throttler, 0))

	var l net.Listener
	if d.conf.DaemonSocket != "" {
		var err error
		l, err = d.listen()
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.Debug("monitor loop starts")
		err := d.monitor.Run(ctx)
		logrus.WithError(err).Debug("monitor loop exited")
		return err
	})
	g.Go(func() error {
		return d.printLoop(ctx, printCursor)
	})
	g.Go(func() error {
		return d.alertLoop(ctx, alertCursor, throttler)
	})

	if l != nil {
		srv := &http.Server{
			Handler: d.setupRoutes(),
			// Long-polling requests end with the daemon.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		g.Go(func() error {
			logrus.Infof("http server listening on %s", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return pkgerrors.Wrapf(err, "http server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logrus.Info("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("failed to shutdown http server: %v", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logrus.WithError(err).Error("daemon stopped")
		return err
	}

	logrus.Info("exiting")
	return nil
}

func (d *Daemon) listen() (net.Listener, error) {
	path := d.conf.DaemonSocket

	// A socket left behind by a previous run would make Listen fail.
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		logrus.Debugf("removing stale socket %s", path)
		if err := os.Remove(path); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to remove stale socket %s", path)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to listen on %s", path)
	}

	if d.conf.AllowNonRootAccess {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", path)
		if err := os.Chmod(path, 0777); err != nil {
			_ = l.Close()
			return nil, pkgerrors.Wrapf(err, "failed to change permissions of %s", path)
		}
	}

	return l, nil
}

// printLoop writes every snapshot whose canonical text differs from the
// last written one.
func (d *Daemon) printLoop(ctx context.Context, cursor *monitor.Cursor) error {
	for {
		s, err := d.monitor.ChangedState(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		before := d.printer.Last()
		if err := d.printer.Print(s); err != nil {
			return err
		}
		if line := d.printer.Last(); line != before {
			d.hub.PublishRaw(events.Snapshot, []byte(line))
		}
	}
}

// alertLoop feeds each snapshot to the throttler and runs the alert
// command on Fire, waiting for it before looking at the next snapshot.
func (d *Daemon) alertLoop(ctx context.Context, cursor *monitor.Cursor, throttler *alert.Throttler) error {
	fires := 0

	for {
		s, err := d.monitor.ChangedState(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		decision := throttler.Decide(s.Percentage, d.now())
		logrus.WithFields(logrus.Fields{
			"percentage": s.Percentage,
			"threshold":  throttler.Threshold(),
			"decision":   decision,
		}).Trace("alert decision")

		if decision == alert.Fire {
			fires++
		}
		d.alerts.Publish(alert.StatusOf(throttler, fires))

		if decision != alert.Fire {
			continue
		}

		d.hub.Publish(events.AlertFired, events.AlertFiredEvent{
			Percentage: s.Percentage,
			Threshold:  throttler.Threshold(),
			Fires:      fires,
			Ts:         d.now().Unix(),
		})
		if d.runner == nil {
			continue
		}

		if err := d.runner.Run(ctx, s); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
