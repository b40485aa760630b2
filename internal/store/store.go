// Package store persists function summaries durably, one record per
// function, so an interrupted run can resume from what is already on disk.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is an append-only mapping of function name to summary.
type Store interface {
	// Load returns every summary recorded so far.
	Load(ctx context.Context) (map[string]string, error)
	// Append durably records one summary before returning.
	Append(ctx context.Context, name, summary string) error
	Close() error
}

// ErrDuplicate is returned when a function already has a recorded summary.
var ErrDuplicate = errors.New("summary already recorded")

const (
	DriverJSONL  = "jsonl"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver at path. runID tags records where the
// backend keeps per-record metadata.
func Open(ctx context.Context, driver, path, runID string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSONL:
		return OpenJSONL(path)
	case DriverSQLite:
		return OpenSQLite(ctx, path, runID)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
