package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/batmon/pkg/alert"
	"github.com/charlie0129/batmon/pkg/config"
)

// Snapshot is the canonical form of a battery snapshot as served by the
// daemon.
type Snapshot struct {
	Percentage  uint64 `json:"percentage"`
	Wattage     uint64 `json:"wattage"`
	Type        string `json:"type"`
	TimeToFull  string `json:"time_to_full,omitempty"`
	TimeToEmpty string `json:"time_to_empty,omitempty"`
}

func (c *Client) getSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	ret, err := c.Get(ctx, path)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusServiceUnavailable {
			return nil, pkgerrors.Wrapf(ErrNoSnapshot, "%s", se.body)
		}
		return nil, pkgerrors.Wrapf(err, "failed to get snapshot")
	}

	var s Snapshot
	if err := json.Unmarshal(ret, &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal snapshot")
	}
	return &s, nil
}

// GetSnapshot returns the daemon's current snapshot.
func (c *Client) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	return c.getSnapshot(ctx, "/snapshot")
}

// WaitSnapshot blocks until the daemon publishes a new snapshot.
func (c *Client) WaitSnapshot(ctx context.Context) (*Snapshot, error) {
	return c.getSnapshot(ctx, "/snapshot?wait=true")
}

func (c *Client) GetAlertStatus(ctx context.Context) (*alert.Status, error) {
	ret, err := c.Get(ctx, "/alert")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get alert status")
	}

	var st alert.Status
	if err := json.Unmarshal(ret, &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal alert status")
	}
	return &st, nil
}

func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	ret, err := c.Get(ctx, "/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal(ret, &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	ret, err := c.Get(ctx, "/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal(ret, &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}
