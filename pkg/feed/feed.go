package feed

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/snapshot"
	"github.com/charlie0129/batmon/pkg/source"
)

// Feed turns a source into an endless sequence of fresh readings. Each
// Next waits for a native change notification or for the poll floor,
// whichever comes first, then reads once. Consecutive readings may be
// identical; filtering is up to the caller.
//
// A Feed is not safe for concurrent use.
type Feed struct {
	src   source.Source
	floor time.Duration
	now   func() time.Time

	subscribed bool
	changes    <-chan source.Change
}

// New returns a Feed over src. A floor of 0 disables polling, so Next only
// returns on native notifications.
func New(src source.Source, floor time.Duration) *Feed {
	return &Feed{
		src:   src,
		floor: floor,
		now:   time.Now,
	}
}

// Floor returns the poll floor.
func (f *Feed) Floor() time.Duration {
	return f.floor
}

// Read performs one fresh read without waiting.
func (f *Feed) Read(ctx context.Context) (snapshot.Snapshot, error) {
	r, err := f.src.Read(ctx)
	if err != nil {
		return snapshot.Snapshot{}, asSourceError(f.src.Name(), "read", err)
	}
	return r.Snapshot(f.now()), nil
}

// Next blocks until a change is signalled or the floor elapses, then reads.
// It returns ctx.Err() when ctx is done and a *source.Error when the source
// fails.
func (f *Feed) Next(ctx context.Context) (snapshot.Snapshot, error) {
	if err := f.subscribe(ctx); err != nil {
		return snapshot.Snapshot{}, err
	}

	var timeout <-chan time.Time
	if f.floor > 0 {
		timer := time.NewTimer(f.floor)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return snapshot.Snapshot{}, ctx.Err()
	case c, ok := <-f.changes:
		if !ok {
			if ctx.Err() != nil {
				return snapshot.Snapshot{}, ctx.Err()
			}
			return snapshot.Snapshot{}, &source.Error{
				Source: f.src.Name(),
				Op:     "notify",
				Err:    pkgerrors.New("change notifications closed"),
			}
		}
		logrus.WithField("change", c).Trace("native change notification")
	case <-timeout:
		logrus.WithField("floor", f.floor).Trace("poll floor elapsed")
	}

	return f.Read(ctx)
}

// subscribe lazily starts native notifications. Sources without them get
// a nil channel, which never fires.
func (f *Feed) subscribe(ctx context.Context) error {
	if f.subscribed {
		return nil
	}

	n, ok := f.src.(source.Notifier)
	if !ok {
		logrus.WithField("source", f.src.Name()).Debug("source has no change notifications, relying on polling")
		f.subscribed = true
		return nil
	}

	changes, err := n.Notify(ctx)
	if err != nil {
		return asSourceError(f.src.Name(), "notify", err)
	}
	f.changes = changes
	f.subscribed = true
	return nil
}

func asSourceError(name, op string, err error) error {
	var srcErr *source.Error
	if pkgerrors.As(err, &srcErr) {
		return err
	}
	return &source.Error{Source: name, Op: op, Err: err}
}
