// Package app provides the application service layer.
//
// Orchestrates use cases: standings aggregation, cached leaderboard reads, debounced
// broadcasts, ingestion and the orphaned-queue sweep. Depends on domain interfaces,
// not concrete implementations.
package app
