package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/t2r/internal/repositories"
	"github.com/desertthunder/t2r/internal/shared"
	"github.com/urfave/cli/v3"
)

// RecordsList prints every sync record, newest first.
func (r *Runner) RecordsList(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := repositories.NewRecordRepository(db).List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("No sync records yet.\n")
	}

	r.writePlainHeader(fmt.Sprintf("%d sync records", len(records)))
	for i, rec := range records {
		r.writePlain("%d. %s → %s\n", i+1, rec.SourceID, rec.DestinationID)
		r.writePlain("   Calendar: %s  Synced: %s\n", rec.Calendar, rec.SyncedAt.Local().Format(time.DateTime))
	}
	return nil
}

// RecordsForget removes one record. The next run treats the to-do as new.
func (r *Runner) RecordsForget(ctx context.Context, cmd *cli.Command) error {
	sourceID := cmd.StringArg("source-id")
	if sourceID == "" {
		return fmt.Errorf("%w: source-id", shared.ErrMissingArgument)
	}

	db, closeDB, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repositories.NewRecordRepository(db).Delete(sourceID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: no sync record for %s", shared.ErrInvalidArgument, sourceID)
		}
		return err
	}

	r.logger.Info("forgot sync record", "source_id", sourceID)
	return r.writePlain("✓ Forgot %s; the next run will create a new reminder for it\n", sourceID)
}

// RecordsReset removes every record. Requires --yes.
func (r *Runner) RecordsReset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to remove every sync record; existing reminders will be duplicated on the next run", shared.ErrMissingArgument)
	}

	db, closeDB, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	removed, err := repositories.NewRecordRepository(db).DeleteAll()
	if err != nil {
		return err
	}

	r.logger.Warn("reset sync records", "removed", removed)
	return r.writePlain("✓ Removed %d sync records\n", removed)
}
