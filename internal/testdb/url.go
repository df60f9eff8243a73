//go:build integration

// Package testdb opens the PostgreSQL database used by integration tests.
package testdb

import (
	"net/url"
	"os"
	"strings"
)

// Environment variables checked for a test database, in order.
var databaseURLVars = []string{"MEDSCRY_TEST_DATABASE_URL", "DATABASE_URL", "MEDSCRY_DATABASE_URL"}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range databaseURLVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// IsCI reports whether the tests run under a CI system.
func IsCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""
}

// maskDatabaseURL hides the password of a database URL for logs.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
