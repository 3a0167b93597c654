package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

// RecordRepository stores [models.SyncRecord] rows.
type RecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordRepository creates a new RecordRepository with the given database connection
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db, now: time.Now}
}

const recordColumns = `source_id, destination_id, fingerprint, calendar, synced_at, created_at`

// Get retrieves the record for sourceID. It fails with [shared.ErrRecordNotFound] when the
// task has never been exported.
func (r *RecordRepository) Get(sourceID string) (*models.SyncRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM sync_records WHERE source_id = ?`
	return r.scan(r.db.QueryRow(query, sourceID))
}

// Upsert inserts or replaces the record for record.SourceID in a single statement.
//
// created_at is kept from the first insert.
func (r *RecordRepository) Upsert(record *models.SyncRecord) error {
	if record.SourceID == "" || record.DestinationID == "" {
		return fmt.Errorf("%w: record needs a source and destination id", shared.ErrInvalidInput)
	}

	now := r.now().UTC()
	if record.SyncedAt.IsZero() {
		record.SyncedAt = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	query := `
		INSERT INTO sync_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			destination_id = excluded.destination_id,
			fingerprint = excluded.fingerprint,
			calendar = excluded.calendar,
			synced_at = excluded.synced_at
	`

	_, err := r.db.Exec(query,
		record.SourceID,
		record.DestinationID,
		record.Fingerprint,
		record.Calendar,
		record.SyncedAt.UTC(),
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync record: %w", err)
	}
	return nil
}

// List retrieves all records, most recently synced first.
func (r *RecordRepository) List() ([]*models.SyncRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM sync_records ORDER BY synced_at DESC, source_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync records: %w", err)
	}
	defer rows.Close()

	var records []*models.SyncRecord
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// SourceIDs returns the source ID of every record, sorted.
func (r *RecordRepository) SourceIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT source_id FROM sync_records ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list synced source ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored records.
func (r *RecordRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync records: %w", err)
	}
	return n, nil
}

// Delete removes the record for sourceID, so the next run creates the reminder again.
func (r *RecordRepository) Delete(sourceID string) error {
	result, err := r.db.Exec(`DELETE FROM sync_records WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete sync record: %w", err)
	}
	return requireAffected(result, "sync record", sourceID)
}

// DeleteAll removes every record and returns how many were removed.
func (r *RecordRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sync_records`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset sync records: %w", err)
	}
	return result.RowsAffected()
}

func (r *RecordRepository) scan(row scanner) (*models.SyncRecord, error) {
	var record models.SyncRecord
	err := row.Scan(
		&record.SourceID, &record.DestinationID, &record.Fingerprint,
		&record.Calendar, &record.SyncedAt, &record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync record", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync record: %w", err)
	}
	return &record, nil
}
