package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

// RunRepository stores [models.SyncRun] history with soft delete support.
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

const runColumns = `
	id, destination, dry_run, total, created, updated, skipped, failed,
	aborted, abort_reason, started_at, finished_at
`

// Create inserts run, generating an ID when it has none.
func (r *RunRepository) Create(run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now()
	}

	query := `INSERT INTO sync_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		run.ID,
		run.Destination,
		run.DryRun,
		run.Total,
		run.Created,
		run.Updated,
		run.Skipped,
		run.Failed,
		run.Aborted,
		nullString(run.AbortReason),
		run.StartedAt.UTC(),
		utcOrNil(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Update overwrites the counters and outcome of an existing run.
func (r *RunRepository) Update(run *models.SyncRun) error {
	query := `
		UPDATE sync_runs
		SET total = ?, created = ?, updated = ?, skipped = ?, failed = ?,
			aborted = ?, abort_reason = ?, finished_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		run.Total,
		run.Created,
		run.Updated,
		run.Skipped,
		run.Failed,
		run.Aborted,
		nullString(run.AbortReason),
		utcOrNil(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}
	return requireAffected(result, "sync run", run.ID)
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// List retrieves the most recent runs first. A limit of zero or less returns all of them.
func (r *RunRepository) List(limit int) ([]*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE deleted_at IS NULL ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}
	return requireAffected(result, "sync run", id)
}

// DeleteBefore soft-deletes runs that started before cutoff and returns how many were removed.
func (r *RunRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	query := `UPDATE sync_runs SET deleted_at = ? WHERE started_at < ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, r.now().UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync runs: %w", err)
	}
	return result.RowsAffected()
}

func (r *RunRepository) scan(row scanner) (*models.SyncRun, error) {
	var (
		run         models.SyncRun
		abortReason sql.NullString
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.Destination, &run.DryRun, &run.Total, &run.Created,
		&run.Updated, &run.Skipped, &run.Failed, &run.Aborted, &abortReason,
		&run.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run.AbortReason = abortReason.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
