package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/t2r/internal/formatter"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/repositories"
	"github.com/desertthunder/t2r/internal/services"
	"github.com/desertthunder/t2r/internal/shared"
	"github.com/desertthunder/t2r/internal/tasks"
	"github.com/desertthunder/t2r/internal/ui"
	"github.com/urfave/cli/v3"
)

// SyncRun exports Things to-dos into the configured destination.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	useTUI := cmd.Bool("tui")
	dryRun := cmd.Bool("dry-run")

	if useTUI {
		// Keep log output off the terminal the TUI draws on.
		fileLogger, err := shared.NewFileLogger("./tmp/t2r-tui.log")
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.logger.GetLevel())
		r.SetLogger(fileLogger)
	}

	filter, err := r.taskFilter(cmd)
	if err != nil {
		return err
	}

	reportPath := cmd.String("report")
	writeReport := reportPath != "" || cmd.IsSet("format")
	format, err := reportFormat(cmd.String("format"), reportPath)
	if err != nil {
		return err
	}

	if err := r.config.Validate(); err != nil {
		return err
	}

	db, closeDB, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	src, closeSrc, err := r.openSource()
	if err != nil {
		return err
	}
	defer closeSrc()

	sink, err := r.openSink(ctx)
	if err != nil {
		return err
	}

	if !cmd.Bool("skip-checks") {
		if failed := failedChecks(r.preflight(ctx, src, sink)); len(failed) > 0 {
			for _, c := range failed {
				r.writePlain("✗ %s: %v\n", c.Name, c.Err)
			}
			return fmt.Errorf("%w: %d check(s) failed; run `t2r doctor` or pass --skip-checks", shared.ErrRunAborted, len(failed))
		}
	}

	run := r.syncFunc(db, src, sink, filter, dryRun)

	r.logger.Info("starting sync", "source", src.Name(), "destination", sink.Name(), "dry_run", dryRun)

	var report *tasks.SyncReport
	var runErr error
	if useTUI {
		report, runErr = r.runTUI(ctx, run, ui.ModelOpts{
			Destination: sink.Name(),
			DryRun:      dryRun,
			Confirm:     !cmd.Bool("yes"),
		})
	} else {
		r.writePlain("Exporting %s → %s", src.Name(), sink.Name())
		if dryRun {
			r.writePlain(" (dry run)")
		}
		r.writePlain("\n\n")
		report, runErr = r.runPlain(ctx, run)
	}

	if report == nil {
		return runErr
	}

	if !useTUI {
		r.printSummary(report)
	}

	if writeReport {
		written, err := formatter.WriteReport(report, reportPath, format)
		if err != nil {
			r.logger.Error("failed to write report", "error", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			r.writePlain("✓ Report written to %s\n", written)
		}
	}

	return runErr
}

// syncFunc returns the run shown by the plain output or the TUI. Every call builds a new
// engine, so a restarted TUI run starts without the previous run's classifier answers,
// and every finished run is stored in the history.
func (r *Runner) syncFunc(db *sql.DB, src services.Source, sink services.Sink, filter models.TaskFilter, dryRun bool) ui.RunFunc {
	records := repositories.NewRecordRepository(db)
	runs := repositories.NewRunRepository(db)

	return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncReport, error) {
		report, err := r.newEngine(sink, records, dryRun).Export(ctx, src, filter, progress)
		if report != nil {
			if serr := runs.Create(report.Run()); serr != nil {
				r.logger.Warn("failed to save run history", "run_id", report.RunID, "error", serr)
			}
		}
		return report, err
	}
}

// runPlain prints progress lines while run executes.
func (r *Runner) runPlain(ctx context.Context, run ui.RunFunc) (*tasks.SyncReport, error) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchTasks, tasks.FetchCalendars:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.Reconcile, tasks.Classify:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.WriteBatch:
				if _, ok := update.Data.(tasks.TaskResult); ok {
					r.writePlain("   %s\n", update.Message)
				} else {
					r.writePlain("\n📝 %s\n", update.Message)
				}
			}
		}
	}()

	report, err := run(ctx, progressCh)
	close(progressCh)
	<-done

	return report, err
}

func (r *Runner) printSummary(report *tasks.SyncReport) {
	title := "Sync Complete!"
	switch {
	case report.Aborted:
		title = "Sync Aborted"
	case report.DryRun:
		title = "Dry Run Complete"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Run: %s\n", report.RunID)
	r.writePlain("Destination: %s\n", report.Destination)
	r.writePlain("Created: %d  Updated: %d  Skipped: %d  Failed: %d  Pending: %d\n",
		report.Created, report.Updated, report.Skipped, report.Failed, report.Pending)
	if report.Aborted {
		r.writePlain("Reason: %s\n", report.AbortReason)
	}

	if failures := report.Failures(); len(failures) > 0 {
		r.writePlain("\nFailed to write %d reminders:\n", len(failures))
		for _, res := range failures {
			r.writePlain("  - %s (%s): %s\n", res.Title, res.SourceID, res.Error)
		}
	}
	if report.Pending > 0 && !report.DryRun {
		r.writePlain("\n%d reminders were not written; run again to retry.\n", report.Pending)
	}
	r.writePlain("\n")
}

// taskFilter builds the source filter from sync run flags.
func (r *Runner) taskFilter(cmd *cli.Command) (models.TaskFilter, error) {
	filter := models.TaskFilter{
		All:               cmd.Bool("all"),
		IncludeCompleted:  cmd.Bool("include-completed"),
		IncludeCanceled:   cmd.Bool("include-canceled"),
		OnlyWithDeadlines: cmd.Bool("only-deadlines"),
		Tag:               cmd.String("tag"),
	}

	if period := cmd.String("completed-last"); period != "" {
		since, err := shared.ParsePeriod(period, r.now())
		if err != nil {
			return filter, err
		}
		filter.CompletedSince = &since
	}

	for _, v := range cmd.StringSlice("view") {
		view, ok := models.ParseListView(v)
		if !ok {
			return filter, fmt.Errorf("%w: unknown view %q", shared.ErrInvalidFlag, v)
		}
		filter.Views = append(filter.Views, view)
	}

	return filter, nil
}

// reportFormat resolves --format, falling back to the report file's extension and then Markdown.
func reportFormat(name, path string) (formatter.Format, error) {
	if name != "" {
		return formatter.ParseFormat(name)
	}
	if ext := filepath.Ext(path); ext != "" {
		if f, err := formatter.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return formatter.FormatMarkdown, nil
}
