// Package logger provides structured logging for the application.
//
// It configures a log/slog JSON handler from the server config and carries
// request-scoped loggers (with trace ids and learner ids attached) through
// context.Context so stores and services log with the caller's attributes.
package logger
