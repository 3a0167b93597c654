// Package ui implements a terminal progress view for sync runs using bubbletea's Elm architecture.
//
// The TUI moves through three views:
//  1. [ConfirmView] : Show what will run and ask before writing
//  2. [SyncView] : Spinner, progress bar and the latest engine message
//  3. [ResultView] : Counts plus a browsable list of failed and pending tasks
//
// Progress updates flow through a channel from the sync engine, providing non-blocking status reporting.
// The [Model] only sees the run through a [RunFunc], so it works for any source and destination.
package ui
