package ports

import (
	"context"

	"github.com/aretw0/sherpa/pkg/flow"
)

// StateStore persists flow session snapshots so that navigation can stop
// on one process and resume on another.
type StateStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snap *flow.Snapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns flow.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*flow.Snapshot, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of every persisted session.
	List(ctx context.Context) ([]string, error)
}
