package main

import (
	"context"
	"time"

	"github.com/desertthunder/t2r/internal/repositories"
	"github.com/desertthunder/t2r/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recent runs, or prunes old ones with --prune.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	runs := repositories.NewRunRepository(db)

	if period := cmd.String("prune"); period != "" {
		cutoff, err := shared.ParsePeriod(period, r.now())
		if err != nil {
			return err
		}
		removed, err := runs.DeleteBefore(cutoff)
		if err != nil {
			return err
		}
		r.logger.Info("pruned run history", "removed", removed, "before", cutoff)
		return r.writePlain("✓ Removed %d runs started before %s\n", removed, cutoff.Local().Format(time.DateOnly))
	}

	list, err := runs.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list) == 0 {
		return r.writePlain("No sync runs yet.\n")
	}

	r.writePlainHeader("Recent sync runs")
	for _, run := range list {
		r.writePlain("%s  %-9s created %d, updated %d, skipped %d, failed %d",
			run.StartedAt.Local().Format("2006-01-02 15:04"), run.Destination,
			run.Created, run.Updated, run.Skipped, run.Failed)
		if run.DryRun {
			r.writePlain(" [dry run]")
		}
		if run.Aborted {
			r.writePlain(" [aborted: %s]", run.AbortReason)
		}
		r.writePlain("\n   %s\n", run.ID)
	}
	return nil
}
