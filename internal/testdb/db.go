//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/medscry/internal/platform/postgres"
)

var migrateOnce sync.Once
var migrateErr error

// Open connects to the test database and applies migrations once per test
// binary. Without a configured URL the test is skipped locally and fails in CI.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := DatabaseURL()
	if dbURL == "" {
		if IsCI() {
			t.Fatalf("no test database configured in CI; set one of %s", strings.Join(databaseURLVars, ", "))
		}
		t.Skip("no test database configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, dbURL, 4)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", maskDatabaseURL(dbURL), err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(ctx, db, "up")
	})
	if migrateErr != nil {
		t.Fatalf("failed to apply migrations: %v", migrateErr)
	}
	return db
}
