package daemon

import (
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/metrics"
	"github.com/charlie0129/batmon/pkg/snapshot"
)

// Printer writes snapshots as canonical JSON lines, skipping a snapshot
// whose text equals the previous line. It is not safe for concurrent use.
type Printer struct {
	w    io.Writer
	last string
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes s unless it renders to the same text as the last line.
// Serialization and write errors are returned as is.
func (p *Printer) Print(s snapshot.Snapshot) error {
	line, err := s.Canonical()
	if err != nil {
		return err
	}

	if line == p.last {
		logrus.Trace("snapshot unchanged, not printing")
		return nil
	}

	if _, err := io.WriteString(p.w, line+"\n"); err != nil {
		return pkgerrors.Wrapf(err, "failed to write snapshot")
	}
	p.last = line
	metrics.SnapshotEmitted()

	return nil
}

// Last returns the last line written, without the newline.
func (p *Printer) Last() string {
	return p.last
}
