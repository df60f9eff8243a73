package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgresProfileStoreLoad(t *testing.T) {
	t.Parallel()
	learner := uuid.New()
	p, err := domain.NewProfile(learner, domain.BandC, time.Now())
	require.NoError(t, err)
	p.PrimaryDomain = "cardiology"
	blob, err := json.Marshal(p)
	require.NoError(t, err)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantNil bool
		wantErr bool
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT data, version FROM learner_profiles").
					WithArgs(learner).
					WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(blob, 7))
			},
		},
		{
			name: "missing",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT data, version FROM learner_profiles").
					WithArgs(learner).
					WillReturnError(sql.ErrNoRows)
			},
			wantNil: true,
		},
		{
			name: "corrupt blob",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT data, version FROM learner_profiles").
					WithArgs(learner).
					WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow([]byte(`{"cards": [`), 2))
			},
			wantNil: true,
		},
		{
			name: "query failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT data, version FROM learner_profiles").
					WithArgs(learner).
					WillReturnError(errors.New("connection refused"))
			},
			wantNil: true,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			db, mock := newMock(t)
			tc.setup(mock)

			got, err := NewPostgresProfileStore(db).Load(context.Background(), learner)
			if tc.wantErr {
				var storeErr *store.StoreError
				assert.ErrorAs(t, err, &storeErr)
			} else {
				assert.NoError(t, err)
			}
			if tc.wantNil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, "cardiology", got.PrimaryDomain)
				assert.Equal(t, 7, got.Version, "the version column wins over the blob")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresProfileStoreSave(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		version     int
		setup       func(mock sqlmock.Sqlmock, learner uuid.UUID)
		wantErr     error
		wantVersion int
	}{
		{
			name:    "insert new profile",
			version: 0,
			setup: func(mock sqlmock.Sqlmock, learner uuid.UUID) {
				mock.ExpectExec("INSERT INTO learner_profiles").
					WithArgs(learner, sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 1,
		},
		{
			name:    "insert races another writer",
			version: 0,
			setup: func(mock sqlmock.Sqlmock, learner uuid.UUID) {
				mock.ExpectExec("INSERT INTO learner_profiles").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr:     store.ErrVersionConflict,
			wantVersion: 0,
		},
		{
			name:    "update at expected version",
			version: 4,
			setup: func(mock sqlmock.Sqlmock, learner uuid.UUID) {
				mock.ExpectExec("UPDATE learner_profiles").
					WithArgs(learner, sqlmock.AnyArg(), sqlmock.AnyArg(), 4).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 5,
		},
		{
			name:    "update at stale version",
			version: 4,
			setup: func(mock sqlmock.Sqlmock, learner uuid.UUID) {
				mock.ExpectExec("UPDATE learner_profiles").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr:     store.ErrVersionConflict,
			wantVersion: 4,
		},
		{
			name:    "statement failure",
			version: 4,
			setup: func(mock sqlmock.Sqlmock, learner uuid.UUID) {
				mock.ExpectExec("UPDATE learner_profiles").
					WillReturnError(newPgError(checkViolationCode))
			},
			wantErr:     store.ErrInvalidEntity,
			wantVersion: 4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			db, mock := newMock(t)
			p, err := domain.NewProfile(uuid.New(), domain.BandB, time.Now())
			require.NoError(t, err)
			p.Version = tc.version
			tc.setup(mock, p.LearnerID)

			err = NewPostgresProfileStore(db).Save(context.Background(), p)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantVersion, p.Version)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNewPostgresProfileStoreNilDB(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewPostgresProfileStore(nil) })
	assert.Panics(t, func() { NewPostgresCatalog(nil) })
}
