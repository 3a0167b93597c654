// Package models defines the value types passed between the task source, the mapping engine and the reminders destination.
//
// The package contains three groups of types:
//
// 1. Source side: tasks as read from Things
//   - [SourceTask] : a single to-do with its list, project path, tags and checklist
//   - [TaskFilter] : which tasks a run reads
//
// 2. Destination side
//   - [MappedReminder] : the reminder rendered from one task, including the composed notes and flag
//
// 3. Persistent state
//   - [SyncRecord] : correlation between a source task and its reminder plus the content fingerprint last written
//   - [SyncRun] : summary of one run for the history command
package models
