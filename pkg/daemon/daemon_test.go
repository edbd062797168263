package daemon

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/batmon/pkg/alert"
	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/events"
	"github.com/charlie0129/batmon/pkg/snapshot"
	"github.com/charlie0129/batmon/pkg/source"
)

// chanFeed returns initial on Read, then whatever the test pushes.
type chanFeed struct {
	initial snapshot.Snapshot
	next    chan snapshot.Snapshot
	errs    chan error
}

func newChanFeed(initial snapshot.Snapshot) *chanFeed {
	return &chanFeed{
		initial: initial,
		next:    make(chan snapshot.Snapshot),
		errs:    make(chan error),
	}
}

func (f *chanFeed) Read(context.Context) (snapshot.Snapshot, error) {
	return f.initial, nil
}

func (f *chanFeed) Next(ctx context.Context) (snapshot.Snapshot, error) {
	select {
	case s := <-f.next:
		return s, nil
	case err := <-f.errs:
		return snapshot.Snapshot{}, err
	case <-ctx.Done():
		return snapshot.Snapshot{}, ctx.Err()
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []float64
	err   error
}

func (r *fakeRunner) Run(_ context.Context, s snapshot.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s.Percentage)
	return r.err
}

func (r *fakeRunner) Calls() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.calls...)
}

// syncBuffer is written by the print loop and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\n"), "\n")
}

func discharging(p float64) snapshot.Snapshot {
	return snapshot.New(p, 8, snapshot.Discharging{TimeToEmpty: 2 * time.Hour}, time.Now())
}

func testConfig() *config.Config {
	return &config.Config{
		AlertThreshold: 10,
		AlertCommand:   "notify",
		Source:         source.NameAuto,
	}
}

func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return cancel, done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestRunPrintsDistinctSnapshots(t *testing.T) {
	out := &syncBuffer{}
	f := newChanFeed(discharging(90))
	d := New(Options{Config: testConfig(), Feed: f, Runner: &fakeRunner{}, Output: out})
	cancel, done := startDaemon(t, d)

	f.next <- discharging(90)
	f.next <- discharging(90.2)
	f.next <- discharging(80)

	last, err := discharging(80).Canonical()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		lines := out.Lines()
		return lines[len(lines)-1] == last
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitErr(t, done))

	lines := out.Lines()
	for i := 1; i < len(lines); i++ {
		assert.NotEqual(t, lines[i-1], lines[i], "line %d repeated", i)
	}
}

func TestRunStopsOnSourceError(t *testing.T) {
	f := newChanFeed(discharging(50))
	d := New(Options{Config: testConfig(), Feed: f, Runner: &fakeRunner{}, Output: &syncBuffer{}})
	_, done := startDaemon(t, d)

	srcErr := &source.Error{Source: "fake", Op: "read", Err: errors.New("device gone")}
	f.errs <- srcErr

	err := waitErr(t, done)
	var got *source.Error
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "device gone", got.Err.Error())
}

func TestAlertLoopFiresOncePerCrossing(t *testing.T) {
	runner := &fakeRunner{}
	f := newChanFeed(discharging(50))
	d := New(Options{Config: testConfig(), Feed: f, Runner: runner, Output: &syncBuffer{}})
	evs := d.hub.Subscribe()
	cancel, done := startDaemon(t, d)

	// One status publish at start, then one per decision.
	decided := func(n uint64) {
		t.Helper()
		require.Eventually(t, func() bool {
			return d.alerts.Version() >= n+1
		}, 2*time.Second, 5*time.Millisecond)
	}

	decided(1)
	for i, p := range []float64{9, 8, 7, 30, 10} {
		f.next <- discharging(p)
		decided(uint64(i + 2))
	}

	// The status is published before the command runs.
	require.Eventually(t, func() bool {
		return len(runner.Calls()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{9, 10}, runner.Calls())

	st := d.AlertStatus()
	assert.Equal(t, 2, st.Fires)
	assert.False(t, st.Armed)
	assert.True(t, st.Enabled)
	require.NotNil(t, st.LastFiredAt)

	cancel()
	require.NoError(t, waitErr(t, done))

	var fired []events.AlertFiredEvent
	for len(evs) > 0 {
		ev := <-evs
		if ev.Name != events.AlertFired {
			continue
		}
		payload, err := events.DecodeAs[events.AlertFiredEvent](ev)
		require.NoError(t, err)
		fired = append(fired, payload)
	}
	require.Len(t, fired, 2)
	assert.Equal(t, 9.0, fired[0].Percentage)
	assert.Equal(t, 2, fired[1].Fires)
}

func TestAlertLoopWithoutCommand(t *testing.T) {
	conf := testConfig()
	conf.AlertCommand = ""

	f := newChanFeed(discharging(1))
	d := New(Options{Config: conf, Feed: f, Output: &syncBuffer{}})
	assert.Nil(t, d.runner)

	cancel, done := startDaemon(t, d)
	require.Eventually(t, func() bool {
		return d.alerts.Version() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	st := d.AlertStatus()
	assert.False(t, st.Enabled)
	assert.Equal(t, 0, st.Fires)

	cancel()
	require.NoError(t, waitErr(t, done))
}

func TestRunStopsOnAlertCommandError(t *testing.T) {
	runner := &fakeRunner{err: &alert.CommandError{Command: "notify", Err: errors.New("exec format error")}}
	f := newChanFeed(discharging(3))
	d := New(Options{Config: testConfig(), Feed: f, Runner: runner, Output: &syncBuffer{}})
	_, done := startDaemon(t, d)

	err := waitErr(t, done)
	var cmdErr *alert.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "notify", cmdErr.Command)
}

func TestRunServesSocket(t *testing.T) {
	conf := testConfig()
	conf.DaemonSocket = filepath.Join(t.TempDir(), "batmon.sock")
	conf.AllowNonRootAccess = true

	f := newChanFeed(discharging(70))
	d := New(Options{Config: conf, Feed: f, Runner: &fakeRunner{}, Output: &syncBuffer{}})
	cancel, done := startDaemon(t, d)

	require.Eventually(t, func() bool {
		fi, err := os.Stat(conf.DaemonSocket)
		return err == nil && fi.Mode().Perm() == 0777
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitErr(t, done))

	_, err := os.Stat(conf.DaemonSocket)
	assert.True(t, os.IsNotExist(err), "socket should be removed on shutdown")
}
