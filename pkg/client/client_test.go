package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/daemon"
	"github.com/charlie0129/batmon/pkg/events"
	"github.com/charlie0129/batmon/pkg/snapshot"
	"github.com/charlie0129/batmon/pkg/version"
)

type stepFeed struct {
	initial snapshot.Snapshot
	next    chan snapshot.Snapshot
}

func (f *stepFeed) Read(context.Context) (snapshot.Snapshot, error) {
	return f.initial, nil
}

func (f *stepFeed) Next(ctx context.Context) (snapshot.Snapshot, error) {
	select {
	case s := <-f.next:
		return s, nil
	case <-ctx.Done():
		return snapshot.Snapshot{}, ctx.Err()
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func startDaemon(t *testing.T) (*Client, *stepFeed) {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "batmon.sock")
	feed := &stepFeed{
		initial: snapshot.New(81.3, 5.6, snapshot.Charging{TimeToFull: 25 * time.Minute}, time.Now()),
		next:    make(chan snapshot.Snapshot),
	}
	d := daemon.New(daemon.Options{
		Config: &config.Config{
			AlertThreshold:      15,
			AlertRefireInterval: time.Minute,
			Source:              "auto",
			DaemonSocket:        socket,
		},
		Feed:   feed,
		Output: discard{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	c := NewClient(socket)
	require.Eventually(t, func() bool {
		_, err := c.GetSnapshot(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return c, feed
}

func TestClientDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetVersion(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestClientStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	c := NewClient(path)
	_, err := c.GetVersion(context.Background())
	assert.Error(t, err)
}

func TestClientGetters(t *testing.T) {
	c, _ := startDaemon(t)
	ctx := context.Background()

	s, err := c.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Snapshot{Percentage: 81, Wattage: 6, Type: "charging", TimeToFull: "25m"}, s)

	v, err := c.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)

	conf, err := c.GetConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, conf.AlertThreshold)
	assert.Equal(t, 15.0, *conf.AlertThreshold)
	assert.Nil(t, conf.AlertCommand)

	st, err := c.GetAlertStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, 15.0, st.Threshold)
}

func TestClientWaitSnapshot(t *testing.T) {
	c, feed := startDaemon(t)

	got := make(chan *Snapshot, 1)
	errs := make(chan error, 1)
	go func() {
		s, err := c.WaitSnapshot(context.Background())
		if err != nil {
			errs <- err
			return
		}
		got <- s
	}()

	next := snapshot.New(80, 0, snapshot.NotCharging{}, time.Now())
	for {
		select {
		case s := <-got:
			assert.Equal(t, "not_charging", s.Type)
			assert.Equal(t, uint64(80), s.Percentage)
			return
		case err := <-errs:
			t.Fatal(err)
		case feed.next <- next:
		case <-time.After(5 * time.Second):
			t.Fatal("wait did not return")
		}
	}
}

func TestClientNotFound(t *testing.T) {
	c, _ := startDaemon(t)
	_, err := c.Get(context.Background(), "/no-such-endpoint")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClientSubscribeEvents(t *testing.T) {
	c, feed := startDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, events.Snapshot, ev.Name)
	assert.JSONEq(t, `{"percentage":81,"wattage":6,"type":"charging","time_to_full":"25m"}`, string(ev.Data))

	feed.next <- snapshot.New(20, 4, snapshot.Discharging{TimeToEmpty: 40 * time.Minute}, time.Now())

	for ev := range ch {
		if ev.Name != events.Snapshot {
			continue
		}
		s, err := events.DecodeAs[Snapshot](ev)
		require.NoError(t, err)
		if s.Percentage == 20 {
			assert.Equal(t, "40m", s.TimeToEmpty)
			return
		}
	}
	t.Fatal("event stream ended before the new snapshot")
}
