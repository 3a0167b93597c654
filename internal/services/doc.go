// Package services defines the [Source] and [Sink] interfaces and implements them for Things,
// Apple Reminders and Google Tasks.
//
// # Things
//
// [ThingsSource] reads the Things 3 SQLite database read-only. The database is found under the
// Things group container unless a path is configured. Dates stored in the packed Things format
// are decoded in the local zone and the list a task shows in (Inbox, Today, ...) is derived from
// its start bucket and start date.
//
// # Apple Reminders
//
// [RemindersSink] drives the Reminders app with JavaScript for Automation through osascript.
// The [ScriptRunner] is injectable so tests never need macOS. Automation permission errors
// (-1743, "not authorized") become [shared.ErrDestinationUnavailable], which ends the run.
//
// # Google Tasks
//
// [GoogleTasksSink] uses the Tasks API with an OAuth2 token saved by "t2r auth google".
// Task lists stand in for calendars and flagged reminders get a [FlagPrefix] title.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrSourceUnavailable] : the task store could not be read
//   - [shared.ErrDestinationUnavailable] : the destination refused or lost access
//   - [shared.SinkWriteError] : a single create or update failed
package services
