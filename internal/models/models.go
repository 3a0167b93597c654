// package models defines the data model for the Things to Reminders exporter
package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a task in the source store.
type TaskStatus string

const (
	StatusOpen      TaskStatus = "open"
	StatusCompleted TaskStatus = "completed"
	StatusCanceled  TaskStatus = "canceled"
	StatusTrashed   TaskStatus = "trashed"
)

// Active reports whether the task still needs doing.
func (s TaskStatus) Active() bool { return s == StatusOpen }

// ListView is the source list a task currently appears in.
type ListView string

const (
	ViewInbox    ListView = "inbox"
	ViewToday    ListView = "today"
	ViewAnytime  ListView = "anytime"
	ViewSomeday  ListView = "someday"
	ViewUpcoming ListView = "upcoming"
)

// ParseListView validates a user supplied view name.
func ParseListView(s string) (ListView, bool) {
	switch v := ListView(s); v {
	case ViewInbox, ViewToday, ViewAnytime, ViewSomeday, ViewUpcoming:
		return v, true
	}
	return "", false
}

// ChecklistItem is one line of a task's checklist.
type ChecklistItem struct {
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// SourceTask is a task as read from the source store. It is re-read on every run.
type SourceTask struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Notes       string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status      TaskStatus      `json:"status" yaml:"status"`
	Due         *time.Time      `json:"due,omitempty" yaml:"due,omitempty"`
	List        ListView        `json:"list" yaml:"list"`
	Path        []string        `json:"path,omitempty" yaml:"path,omitempty"`
	Tags        []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty" yaml:"checklist,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// MappedReminder is the destination representation of one SourceTask.
type MappedReminder struct {
	SourceID      string         `json:"source_id" yaml:"source_id"`
	Title         string         `json:"title" yaml:"title"`
	Notes         string         `json:"notes" yaml:"notes"`
	Due           *time.Time     `json:"due,omitempty" yaml:"due,omitempty"`
	Flagged       bool           `json:"flagged" yaml:"flagged"`
	EarlyReminder *time.Duration `json:"early_reminder,omitempty" yaml:"early_reminder,omitempty"`
	Completed     bool           `json:"completed" yaml:"completed"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Calendar      string         `json:"calendar,omitempty" yaml:"calendar,omitempty"`
}

// EarlyAlertAt returns the instant of the early alert, or nil when none applies.
func (r MappedReminder) EarlyAlertAt() *time.Time {
	if r.Due == nil || r.EarlyReminder == nil {
		return nil
	}
	at := r.Due.Add(-*r.EarlyReminder)
	return &at
}

// SyncRecord correlates a source task with the reminder created for it.
//
// At most one exists per SourceID.
type SyncRecord struct {
	SourceID      string    `json:"source_id" yaml:"source_id"`
	DestinationID string    `json:"destination_id" yaml:"destination_id"`
	Fingerprint   string    `json:"fingerprint" yaml:"fingerprint"`
	Calendar      string    `json:"calendar" yaml:"calendar"`
	SyncedAt      time.Time `json:"synced_at" yaml:"synced_at"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// SyncRun is the stored summary of one engine run.
type SyncRun struct {
	ID          string     `json:"id" yaml:"id"`
	Destination string     `json:"destination" yaml:"destination"`
	DryRun      bool       `json:"dry_run" yaml:"dry_run"`
	Total       int        `json:"total" yaml:"total"`
	Created     int        `json:"created" yaml:"created"`
	Updated     int        `json:"updated" yaml:"updated"`
	Skipped     int        `json:"skipped" yaml:"skipped"`
	Failed      int        `json:"failed" yaml:"failed"`
	Aborted     bool       `json:"aborted" yaml:"aborted"`
	AbortReason string     `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// TaskFilter selects which source tasks a run considers.
//
// The zero value selects open, non-trashed to-dos in every list.
type TaskFilter struct {
	All               bool
	IncludeCompleted  bool
	IncludeCanceled   bool
	CompletedSince    *time.Time
	OnlyWithDeadlines bool
	Views             []ListView
	Tag               string

	// Tracked holds source IDs that already have a sync record. They are read in any
	// status, so completing or trashing a synced to-do still reaches its reminder.
	Tracked []string
}
