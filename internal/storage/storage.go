package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// ProgressStore persists player-progress checkpoints emitted by the
// bookmark effect. The engine hands snapshots over fire-and-forget; the
// store is the external persistence collaborator, never the engine's
// concern.
type ProgressStore interface {
	// Ping tests the store connection
	Ping(ctx context.Context) error

	// SaveProgress stores a progress snapshot for an attempt
	SaveProgress(ctx context.Context, attemptID uuid.UUID, progress *state.PlayerProgress) error

	// LoadProgress retrieves a progress snapshot by attempt id.
	// Returns nil if no snapshot exists
	LoadProgress(ctx context.Context, attemptID uuid.UUID) (*state.PlayerProgress, error)

	// DeleteProgress removes a stored snapshot
	DeleteProgress(ctx context.Context, attemptID uuid.UUID) error

	// Close closes the store connection
	Close() error
}
