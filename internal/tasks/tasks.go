package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/calendar"
	"github.com/desertthunder/t2r/internal/mapper"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/services"
	"github.com/desertthunder/t2r/internal/shared"
	"golang.org/x/time/rate"
)

// RecordStore persists sync records. Get fails with [shared.ErrRecordNotFound] when the
// task has never been written.
type RecordStore interface {
	Get(sourceID string) (*models.SyncRecord, error)
	Upsert(record *models.SyncRecord) error
	SourceIDs() ([]string, error)
}

// CalendarSelector resolves a calendar for each task, in order.
type CalendarSelector interface {
	SelectAll(ctx context.Context, tasks []models.SourceTask, available []string) []string
}

// EngineOpts contains the dependencies and tuning of an [Engine].
type EngineOpts struct {
	Sink                   services.Sink
	Store                  RecordStore
	Selector               CalendarSelector // Defaults to a selector without a classifier
	Logger                 *log.Logger      // Defaults to a discarding logger
	BatchSize              int              // Defaults to [DefaultBatchSize]
	MaxConsecutiveFailures int              // Abort after this many failed writes in a row; 0 disables
	WritesPerSecond        float64          // Sink write rate; <= 0 is unlimited
	DryRun                 bool             // Plan only: no writes, no record changes
	Now                    func() time.Time
}

// Engine drives one-way sync from a task list into a reminders sink.
//
// Each task moves through the states described on [State]. A sync record is written
// only after the sink confirms a write, so re-running after any failure never
// duplicates a reminder.
type Engine struct {
	sink           services.Sink
	store          RecordStore
	selector       CalendarSelector
	logger         *log.Logger
	batchSize      int
	maxConsecutive int
	writeRate      float64
	dryRun         bool
	now            func() time.Time
}

// workItem is a task that needs a create or update.
type workItem struct {
	index       int
	task        models.SourceTask
	reminder    models.MappedReminder
	record      *models.SyncRecord
	fingerprint string
}

// NewEngine creates an [Engine] from opts.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Selector == nil {
		opts.Selector = calendar.NewSelector(calendar.SelectorOpts{Logger: opts.Logger})
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		sink:           opts.Sink,
		store:          opts.Store,
		selector:       opts.Selector,
		logger:         opts.Logger,
		batchSize:      opts.BatchSize,
		maxConsecutive: opts.MaxConsecutiveFailures,
		writeRate:      opts.WritesPerSecond,
		dryRun:         opts.DryRun,
		now:            opts.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Export reads tasks from src and runs them. Tasks that already have a sync record are
// requested whatever their status so their reminders follow them. A source failure is
// fatal and happens before any write.
func (e *Engine) Export(ctx context.Context, src services.Source, filter models.TaskFilter, progress chan<- ProgressUpdate) (*SyncReport, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no task source configured", shared.ErrSourceUnavailable)
	}

	if e.store != nil {
		tracked, err := e.store.SourceIDs()
		if err != nil {
			return nil, fmt.Errorf("%w: listing synced tasks: %v", shared.ErrPersistence, err)
		}
		filter.Tracked = append(append([]string(nil), filter.Tracked...), tracked...)
	}

	e.sendProgress(progress, fetchTasksUpdate(src.Name()))

	tasks, err := src.FetchTasks(ctx, filter)
	if err != nil {
		if !errors.Is(err, shared.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		return nil, err
	}

	e.logger.Info("read source tasks", "source", src.Name(), "count", len(tasks))
	return e.Run(ctx, tasks, progress)
}

// Run syncs tasks into the sink.
//
// The returned report is never nil. When err is non-nil the report describes the work done
// before the run stopped and err wraps [shared.ErrRunAborted] plus the cause:
// [shared.ErrDestinationUnavailable], [shared.ErrPersistence] or a context error.
func (e *Engine) Run(ctx context.Context, tasks []models.SourceTask, progress chan<- ProgressUpdate) (report *SyncReport, err error) {
	report = &SyncReport{
		RunID:     shared.GenerateID(),
		DryRun:    e.dryRun,
		StartedAt: e.now(),
		Results:   make([]TaskResult, 0, len(tasks)),
	}
	defer func() {
		report.tally()
		report.FinishedAt = e.now()
		e.sendProgress(progress, completeUpdate(report))
	}()

	if e.sink == nil {
		return report, e.abort(report, fmt.Errorf("%w: no destination configured", shared.ErrDestinationUnavailable))
	}
	if e.store == nil {
		return report, e.abort(report, fmt.Errorf("%w: no record store configured", shared.ErrPersistence))
	}
	report.Destination = e.sink.Name()

	logger := shared.WithLogger(e.logger, "run_id", report.RunID)
	if len(tasks) == 0 {
		logger.Info("nothing to sync")
		return report, nil
	}
	logger.Info("starting sync", "tasks", len(tasks), "destination", report.Destination, "dry_run", e.dryRun)

	e.sendProgress(progress, fetchCalendarsUpdate(report.Destination))
	available, err := e.sink.ListCalendars(ctx)
	if err == nil && len(available) == 0 {
		err = errors.New("destination has no calendars")
	}
	if err != nil {
		if !errors.Is(err, shared.ErrDestinationUnavailable) {
			err = fmt.Errorf("%w: %v", shared.ErrDestinationUnavailable, err)
		}
		return report, e.abort(report, err)
	}

	pending, err := e.reconcile(report, tasks)
	if err != nil {
		return report, e.abort(report, err)
	}
	e.sendProgress(progress, reconcileUpdate(len(tasks), len(pending)))

	e.assignCalendars(ctx, report, pending, available, progress)

	if err := e.write(ctx, report, pending, logger, progress); err != nil {
		return report, e.abort(report, err)
	}

	report.tally()
	logger.Info("sync finished",
		"created", report.Created, "updated", report.Updated,
		"skipped", report.Skipped, "failed", report.Failed, "pending", report.Pending)
	return report, nil
}

// reconcile maps every task and compares it with its sync record. It returns the tasks that
// need a write, in input order.
func (e *Engine) reconcile(report *SyncReport, tasks []models.SourceTask) ([]*workItem, error) {
	seen := make(map[string]bool, len(tasks))
	var pending []*workItem

	for _, task := range tasks {
		reminder := mapper.Map(task)
		res := TaskResult{SourceID: task.ID, Title: reminder.Title}

		if seen[task.ID] {
			res.State = StateSkipped
			res.Error = "duplicate source id in this run"
			report.Results = append(report.Results, res)
			e.logger.Warn("skipping duplicate task", "source_id", task.ID)
			continue
		}
		seen[task.ID] = true

		record, err := e.store.Get(task.ID)
		if err != nil && !errors.Is(err, shared.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reading record for %s: %v", shared.ErrPersistence, task.ID, err)
		}
		if errors.Is(err, shared.ErrRecordNotFound) {
			record = nil
		}

		item := &workItem{
			index:       len(report.Results),
			task:        task,
			reminder:    reminder,
			record:      record,
			fingerprint: mapper.Fingerprint(reminder),
		}

		if record == nil {
			res.State = StateNew
			res.advance(StateCreatePending)
			pending = append(pending, item)
		} else {
			res.State = StateExisting
			res.DestinationID = record.DestinationID
			res.Calendar = record.Calendar
			if record.Fingerprint == item.fingerprint {
				res.advance(StateSkipped)
			} else {
				res.advance(StateUpdatePending)
				pending = append(pending, item)
			}
		}
		report.Results = append(report.Results, res)
	}

	return pending, nil
}

// assignCalendars classifies new reminders. Updates keep the calendar they were created in.
func (e *Engine) assignCalendars(ctx context.Context, report *SyncReport, pending []*workItem, available []string, progress chan<- ProgressUpdate) {
	var need []*workItem
	for _, it := range pending {
		if it.record != nil && it.record.Calendar != "" {
			it.reminder.Calendar = it.record.Calendar
			continue
		}
		need = append(need, it)
	}
	if len(need) == 0 {
		return
	}

	e.sendProgress(progress, classifyUpdate(len(need)))

	tasks := make([]models.SourceTask, len(need))
	for i, it := range need {
		tasks[i] = it.task
	}

	cals := e.selector.SelectAll(ctx, tasks, available)
	for i, it := range need {
		it.reminder.Calendar = cals[i]
		report.Results[it.index].Calendar = cals[i]
	}
}

// write performs the pending writes batch by batch. Individual write failures are
// recorded and skipped over; the returned error is only for conditions that end the run.
func (e *Engine) write(ctx context.Context, report *SyncReport, pending []*workItem, logger *log.Logger, progress chan<- ProgressUpdate) error {
	limit := rate.Inf
	if e.writeRate > 0 {
		limit = rate.Limit(e.writeRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	batches := Plan(pending, e.batchSize)
	consecutive := 0
	step := 0

	for _, b := range batches {
		e.sendProgress(progress, batchUpdate(b.Index, len(batches), len(b.Items)))
		logger.Debug("processing batch", "batch", b.Index+1, "of", len(batches), "size", len(b.Items))

		for _, it := range b.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			step++

			if e.dryRun {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return err
			}

			res := &report.Results[it.index]
			werr := e.writeOne(ctx, it, res)
			e.sendProgress(progress, writeUpdate(step, len(pending), *res))

			if werr == nil {
				consecutive = 0
				continue
			}
			if errors.Is(werr, shared.ErrPersistence) {
				return werr
			}

			consecutive++
			logger.Warn("reminder write failed", "source_id", it.task.ID, "state", res.State, "error", werr)

			if errors.Is(werr, shared.ErrDestinationUnavailable) {
				return werr
			}
			if e.maxConsecutive > 0 && consecutive >= e.maxConsecutive {
				return fmt.Errorf("%w: %d consecutive write failures, last: %v", shared.ErrDestinationUnavailable, consecutive, werr)
			}
		}
	}
	return nil
}

// writeOne creates or updates a single reminder and records it once confirmed.
func (e *Engine) writeOne(ctx context.Context, it *workItem, res *TaskResult) error {
	now := e.now()

	if it.record == nil {
		destID, err := e.sink.CreateReminder(ctx, it.reminder)
		if err != nil {
			err = asSinkWriteError(it.task.ID, err)
			res.advance(StateCreateFailed)
			res.Error = err.Error()
			return err
		}

		res.advance(StateCreated)
		res.DestinationID = destID
		return e.save(res, &models.SyncRecord{
			SourceID:      it.task.ID,
			DestinationID: destID,
			Fingerprint:   it.fingerprint,
			Calendar:      it.reminder.Calendar,
			SyncedAt:      now,
			CreatedAt:     now,
		})
	}

	if err := e.sink.UpdateReminder(ctx, it.record.DestinationID, it.reminder); err != nil {
		err = asSinkWriteError(it.task.ID, err)
		res.advance(StateUpdateFailed)
		res.Error = err.Error()
		return err
	}

	res.advance(StateUpdated)
	record := *it.record
	record.Fingerprint = it.fingerprint
	record.SyncedAt = now
	if record.Calendar == "" {
		record.Calendar = it.reminder.Calendar
	}
	return e.save(res, &record)
}

func (e *Engine) save(res *TaskResult, record *models.SyncRecord) error {
	if err := e.store.Upsert(record); err != nil {
		err = fmt.Errorf("%w: saving record for %s: %v", shared.ErrPersistence, record.SourceID, err)
		res.Error = err.Error()
		return err
	}
	return nil
}

func (e *Engine) abort(report *SyncReport, cause error) error {
	report.Aborted = true
	report.AbortReason = cause.Error()
	e.logger.Error("sync aborted", "run_id", report.RunID, "error", cause)
	return fmt.Errorf("%w: %w", shared.ErrRunAborted, cause)
}

func asSinkWriteError(sourceID string, err error) error {
	var swe *shared.SinkWriteError
	if errors.As(err, &swe) {
		return err
	}
	return &shared.SinkWriteError{SourceID: sourceID, Err: err}
}

// advance moves the result through the state machine; an invalid move is a programming error.
func (r *TaskResult) advance(to State) {
	next, err := r.State.Next(to)
	if err != nil {
		panic(err)
	}
	r.State = next
}
