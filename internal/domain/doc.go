// Package domain contains the progression entities shared by the engine:
// review cards, band status, domain gates, recovery state, content items and
// the daily mix. It holds data and invariants only; the transition logic
// lives in the srs, band, gate, recovery and mix subpackages.
package domain
