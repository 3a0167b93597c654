// Package repositories implements SQLite persistence for sync state.
//
// Key Implementations:
//   - [RecordRepository] : one sync record per exported source task, keyed by source ID
//   - [RunRepository] : run history with soft deletes
//
// The record table is the only state that decides what a run writes. Run history is informational.
package repositories
