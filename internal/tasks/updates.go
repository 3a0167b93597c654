package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchTasks Phase = iota
	FetchCalendars
	Reconcile
	Classify
	WriteBatch
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchTasks:
		return "fetch_tasks"
	case FetchCalendars:
		return "fetch_calendars"
	case Reconcile:
		return "reconcile"
	case Classify:
		return "classify"
	case WriteBatch:
		return "write_batch"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchTasksUpdate(source string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTasks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Reading tasks from %s...", source),
	}
}

func fetchCalendarsUpdate(dest string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCalendars,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Listing %s calendars...", dest),
	}
}

func reconcileUpdate(total, pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Compared %d tasks with sync records, %d need writing", total, pending),
	}
}

func classifyUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Classify,
		Step:    0,
		Total:   count,
		Message: fmt.Sprintf("Choosing calendars for %d reminders...", count),
	}
}

func batchUpdate(b, batches, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteBatch,
		Step:    b + 1,
		Total:   batches,
		Message: fmt.Sprintf("Batch %d/%d (%d reminders)", b+1, batches, size),
	}
}

func writeUpdate(step, total int, res TaskResult) ProgressUpdate {
	mark := "✓"
	if res.State.Failed() {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   WriteBatch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, res.Title, res.State),
		Data:    res,
	}
}

func completeUpdate(report *SyncReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d created, %d updated, %d skipped, %d failed", report.Created, report.Updated, report.Skipped, report.Failed),
		Data:    report,
	}
}
