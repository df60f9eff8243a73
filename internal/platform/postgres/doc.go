// Package postgres provides PostgreSQL implementations of the store
// interfaces: the learner profile blob store and the content catalog.
// It also owns the embedded goose migrations that create their tables and
// the connection helper used by the server.
package postgres
