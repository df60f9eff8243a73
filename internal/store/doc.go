// Package store defines the persistence boundaries of the progression engine:
// the read-only content catalog, the opaque learner profile store and the
// per-learner write lock. It also provides in-memory implementations used by
// tests and by deployments that run without a database.
package store
