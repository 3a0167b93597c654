package services

import (
	"context"

	"github.com/desertthunder/t2r/internal/models"
)

// Source supplies tasks to export.
type Source interface {
	// FetchTasks reads every task matching filter. Failures wrap [shared.ErrSourceUnavailable].
	FetchTasks(ctx context.Context, filter models.TaskFilter) ([]models.SourceTask, error)

	// Name returns the name of the source (e.g., "Things")
	Name() string
}

// Sink is a reminders destination.
type Sink interface {
	// ListCalendars returns the names of the lists reminders can be placed in.
	// Losing access to the destination wraps [shared.ErrDestinationUnavailable].
	ListCalendars(ctx context.Context) ([]string, error)

	// CreateReminder creates r in r.Calendar and returns the destination identifier.
	// Failures are [*shared.SinkWriteError].
	CreateReminder(ctx context.Context, r models.MappedReminder) (string, error)

	// UpdateReminder overwrites the reminder with destinationID in place.
	// Failures are [*shared.SinkWriteError].
	UpdateReminder(ctx context.Context, destinationID string, r models.MappedReminder) error

	// Name returns the name of the destination (e.g., "Reminders", "Google Tasks")
	Name() string
}
