package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/store"
)

// PostgresProfileStore implements store.ProfileStore on the learner_profiles
// table. The profile is kept as an opaque JSONB blob; the version column is
// authoritative for optimistic concurrency.
type PostgresProfileStore struct {
	db store.DBTX
}

// NewPostgresProfileStore creates a profile store on a connection or transaction.
func NewPostgresProfileStore(db store.DBTX) *PostgresProfileStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresProfileStore{db: db}
}

var _ store.ProfileStore = (*PostgresProfileStore)(nil)

const (
	selectProfileQuery = `SELECT data, version FROM learner_profiles WHERE learner_id = $1`

	insertProfileQuery = `
		INSERT INTO learner_profiles (learner_id, data, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (learner_id) DO NOTHING`

	updateProfileQuery = `
		UPDATE learner_profiles
		SET data = $2, version = version + 1, updated_at = $3
		WHERE learner_id = $1 AND version = $4`
)

// Load implements store.ProfileStore.Load.
func (s *PostgresProfileStore) Load(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	log := logger.FromContext(ctx)

	var (
		blob    []byte
		version int
	)
	err := s.db.QueryRowContext(ctx, selectProfileQuery, learnerID).Scan(&blob, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to load learner profile",
			slog.String("learner_id", learnerID.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("profile", "load", "query failed", MapError(err))
	}

	p := store.DecodeProfile(ctx, learnerID, blob)
	if p == nil {
		return nil, nil
	}
	p.Version = version
	return p, nil
}

// Save implements store.ProfileStore.Save. Version 0 inserts a new row; any
// other version updates the row only if it still carries that version.
func (s *PostgresProfileStore) Save(ctx context.Context, profile *domain.Profile) error {
	if profile == nil || profile.LearnerID == uuid.Nil {
		return fmt.Errorf("%w: profile must have a learner id", store.ErrInvalidEntity)
	}
	log := logger.FromContext(ctx)

	next := *profile
	next.Version++
	blob, err := json.Marshal(&next)
	if err != nil {
		return store.NewStoreError("profile", "save", "failed to encode profile", err)
	}

	now := time.Now().UTC()
	var result sql.Result
	if profile.Version == 0 {
		result, err = s.db.ExecContext(ctx, insertProfileQuery, profile.LearnerID, blob, now)
	} else {
		result, err = s.db.ExecContext(ctx, updateProfileQuery, profile.LearnerID, blob, now, profile.Version)
	}
	if err != nil {
		log.Error("failed to save learner profile",
			slog.String("learner_id", profile.LearnerID.String()),
			slog.Int("version", profile.Version),
			slog.String("error", err.Error()))
		return store.NewStoreError("profile", "save", "statement failed", MapError(err))
	}

	conflict := fmt.Errorf("%w: learner %s is no longer at version %d",
		store.ErrVersionConflict, profile.LearnerID, profile.Version)
	if err := checkRowsAffected(result, conflict); err != nil {
		log.Warn("learner profile save lost a version race",
			slog.String("learner_id", profile.LearnerID.String()),
			slog.Int("version", profile.Version))
		return err
	}

	profile.Version = next.Version
	return nil
}
