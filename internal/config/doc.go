// Package config handles configuration loading, parsing, and validation
// from environment variables (MEDSCRY_ prefix) and an optional config.yaml.
// It provides type-safe access to server, storage, auth and progression engine
// settings while keeping configuration details separate from business logic.
package config
