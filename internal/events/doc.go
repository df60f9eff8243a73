// Package events carries progression notifications (band changes, recovery
// mode changes, completed domains, invalidated mixes) from the engine to
// whichever handlers are registered, without the engine knowing about them.
package events
