package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
)

// ProfileStore persists learner profiles as opaque blobs.
type ProfileStore interface {
	// Load returns the learner's profile.
	// A missing profile and an unreadable (corrupt) blob both return nil, nil;
	// corruption is logged and never blocks the caller.
	Load(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error)

	// Save writes the profile if its Version still matches the stored one,
	// then increments profile.Version.
	// Returns ErrVersionConflict when another writer saved first.
	Save(ctx context.Context, profile *domain.Profile) error
}
