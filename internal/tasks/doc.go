// Package tasks exports source tasks into a reminders destination with real-time progress reporting.
//
// # Run
//
// [Engine.Run] takes the tasks read for this run and:
//
//  1. Lists the destination calendars. A failure here aborts before any write.
//  2. Maps each task and compares its fingerprint with the stored [models.SyncRecord].
//     Unknown tasks become creates, changed tasks become updates and the rest are skipped.
//  3. Chooses a calendar for every create. Updates stay in the calendar they were created in.
//  4. Writes in ordered batches of [DefaultBatchSize], rate limited, and upserts the record
//     after each confirmed write.
//
// [Engine.Export] reads the tasks from a [services.Source] first.
//
// # Failures
//
// A failed write is recorded on its [TaskResult] and the run moves on. The run aborts, returning
// the partial [SyncReport], when the destination becomes unavailable, when too many writes fail
// in a row, when the record store fails, or when the context is canceled. Tasks that were
// planned but not attempted keep their pending state and are retried by the next run.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
package tasks
