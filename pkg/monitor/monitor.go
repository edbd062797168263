package monitor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/metrics"
	"github.com/charlie0129/batmon/pkg/snapshot"
	"github.com/charlie0129/batmon/pkg/watch"
)

// Feeder produces fresh battery snapshots. *feed.Feed implements it.
type Feeder interface {
	Read(ctx context.Context) (snapshot.Snapshot, error)
	Next(ctx context.Context) (snapshot.Snapshot, error)
}

// Monitor owns the current snapshot. Run is the only writer; any number of
// goroutines may wait for changes through their own Cursor.
type Monitor struct {
	feed  Feeder
	value *watch.Value[snapshot.Snapshot]
}

// Cursor remembers the last publish a reader has seen.
type Cursor struct {
	seen uint64
}

func New(feed Feeder) *Monitor {
	return &Monitor{
		feed:  feed,
		value: watch.New[snapshot.Snapshot](),
	}
}

// Run publishes an initial reading, then every reading the feed produces.
// It returns nil when ctx is cancelled and the source error otherwise.
func (m *Monitor) Run(ctx context.Context) error {
	s, err := m.feed.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	m.publish(s)

	for {
		s, err := m.feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.publish(s)
	}
}

func (m *Monitor) publish(s snapshot.Snapshot) {
	prev, ok := m.Current()
	m.value.Publish(s)
	metrics.ObserveSnapshot(s)

	logrus.WithFields(logrus.Fields{
		"percentage": s.Percentage,
		"wattage":    s.Wattage,
		"status":     s.Status.Type(),
		"unchanged":  ok && prev.Equal(s),
	}).Trace("published snapshot")
}

// Subscribe returns a cursor at the current publish. Values published
// before this call are never delivered to it.
func (m *Monitor) Subscribe() *Cursor {
	return &Cursor{seen: m.value.Version()}
}

// ChangedState waits until something is published after the cursor's last
// seen publish, returns the latest snapshot and advances the cursor. Any
// publish counts, even one whose content equals the previous value.
func (m *Monitor) ChangedState(ctx context.Context, c *Cursor) (snapshot.Snapshot, error) {
	s, ver, err := m.value.Wait(ctx, c.seen)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	c.seen = ver
	return s, nil
}

// Current returns the latest snapshot, or false before the first publish.
func (m *Monitor) Current() (snapshot.Snapshot, bool) {
	s, ver := m.value.Load()
	return s, ver > 0
}
