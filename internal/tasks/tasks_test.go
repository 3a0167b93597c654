package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/t2r/internal/calendar"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
	tu "github.com/desertthunder/t2r/internal/testing"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleTasks(n int) []models.SourceTask {
	out := make([]models.SourceTask, n)
	for i := range out {
		out[i] = models.SourceTask{
			ID:     fmt.Sprintf("t%03d", i),
			Title:  fmt.Sprintf("Task %d", i),
			Status: models.StatusOpen,
			List:   models.ViewAnytime,
		}
	}
	return out
}

func newSink() *tu.MockSink {
	return &tu.MockSink{Calendars: []string{"Personal", "Work"}}
}

func newTestEngine(sink *tu.MockSink, store *tu.MemoryStore, mods ...func(*EngineOpts)) *Engine {
	opts := EngineOpts{
		Sink:  sink,
		Store: store,
		Now:   func() time.Time { return fixedNow },
	}
	for _, m := range mods {
		m(&opts)
	}
	return NewEngine(opts)
}

func TestEngine_Run(t *testing.T) {
	t.Run("creates new tasks and records them", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		engine := newTestEngine(sink, store)

		report, err := engine.Run(context.Background(), sampleTasks(3), nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if report.Total != 3 || report.Created != 3 {
			t.Errorf("Total/Created = %d/%d, want 3/3", report.Total, report.Created)
		}
		if report.Destination != "mock-sink" {
			t.Errorf("Destination = %q", report.Destination)
		}
		if report.RunID == "" {
			t.Error("RunID should be set")
		}

		records := store.Records()
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		for i, rec := range records {
			res := report.Results[i]
			if rec.DestinationID != res.DestinationID {
				t.Errorf("record %s destination = %q, result has %q", rec.SourceID, rec.DestinationID, res.DestinationID)
			}
			if rec.Fingerprint == "" {
				t.Errorf("record %s has no fingerprint", rec.SourceID)
			}
			if rec.Calendar != "Personal" {
				t.Errorf("record %s calendar = %q, want Personal", rec.SourceID, rec.Calendar)
			}
			if !rec.SyncedAt.Equal(fixedNow) {
				t.Errorf("record %s synced at %v", rec.SourceID, rec.SyncedAt)
			}
		}
	})

	t.Run("second run with unchanged tasks skips everything", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		tasks := sampleTasks(5)

		if _, err := newTestEngine(sink, store).Run(context.Background(), tasks, nil); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}

		report, err := newTestEngine(sink, store).Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}

		if report.Skipped != 5 || report.Created != 0 || report.Updated != 0 {
			t.Errorf("second run created=%d updated=%d skipped=%d, want 0/0/5", report.Created, report.Updated, report.Skipped)
		}
		if got := sink.Count("create"); got != 5 {
			t.Errorf("sink creates = %d, want 5", got)
		}
		if got := sink.Count("update"); got != 0 {
			t.Errorf("sink updates = %d, want 0", got)
		}
	})

	t.Run("changed task is updated in its original calendar", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		tasks := sampleTasks(3)

		first := newTestEngine(sink, store, func(o *EngineOpts) {
			o.Selector = calendar.NewSelector(calendar.SelectorOpts{Default: "Work"})
		})
		if _, err := first.Run(context.Background(), tasks, nil); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}

		tasks[1].Title = "Task 1 renamed"
		second := newTestEngine(sink, store, func(o *EngineOpts) {
			o.Selector = calendar.NewSelector(calendar.SelectorOpts{Default: "Personal"})
		})
		report, err := second.Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}

		if report.Updated != 1 || report.Skipped != 2 {
			t.Errorf("updated=%d skipped=%d, want 1/2", report.Updated, report.Skipped)
		}
		if report.Results[1].State != StateUpdated {
			t.Errorf("Results[1].State = %s, want updated", report.Results[1].State)
		}

		last := sink.Calls[len(sink.Calls)-1]
		if last.Op != "update" || last.Reminder.Title != "Task 1 renamed" {
			t.Errorf("last sink call = %+v", last)
		}
		if last.Reminder.Calendar != "Work" {
			t.Errorf("update calendar = %q, want Work", last.Reminder.Calendar)
		}
		if last.DestinationID != report.Results[1].DestinationID {
			t.Errorf("update went to %q, want %q", last.DestinationID, report.Results[1].DestinationID)
		}
	})

	t.Run("writes in batches of the configured size", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		progress := make(chan ProgressUpdate, 1024)
		tasks := sampleTasks(250)

		report, err := newTestEngine(sink, store).Run(context.Background(), tasks, progress)
		close(progress)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Created != 250 {
			t.Errorf("Created = %d, want 250", report.Created)
		}

		var batchMessages []string
		var last ProgressUpdate
		for u := range progress {
			if u.Phase == WriteBatch && u.Data == nil {
				batchMessages = append(batchMessages, u.Message)
			}
			last = u
		}

		want := []string{
			"Batch 1/3 (100 reminders)",
			"Batch 2/3 (100 reminders)",
			"Batch 3/3 (50 reminders)",
		}
		if strings.Join(batchMessages, "|") != strings.Join(want, "|") {
			t.Errorf("batch updates = %v, want %v", batchMessages, want)
		}
		if last.Phase != Complete {
			t.Errorf("last update phase = %s, want complete", last.Phase)
		}

		for i, call := range sink.Calls {
			if call.Reminder.SourceID != tasks[i].ID {
				t.Fatalf("write %d was %s, want %s", i, call.Reminder.SourceID, tasks[i].ID)
			}
		}
	})

	t.Run("single failure does not stop the run", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.FailFor = map[string]error{"t001": errors.New("boom")}
		tasks := sampleTasks(3)

		report, err := newTestEngine(sink, store).Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Created != 2 || report.Failed != 1 {
			t.Errorf("created=%d failed=%d, want 2/1", report.Created, report.Failed)
		}

		failures := report.Failures()
		if len(failures) != 1 || failures[0].SourceID != "t001" || failures[0].State != StateCreateFailed {
			t.Fatalf("Failures() = %+v", failures)
		}
		if !strings.Contains(failures[0].Error, "boom") {
			t.Errorf("failure error = %q, want it to mention the cause", failures[0].Error)
		}
		if _, err := store.Get("t001"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("failed task should have no record, Get() error = %v", err)
		}

		sink.FailFor = nil
		retry, err := newTestEngine(sink, store).Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("retry Run() error = %v", err)
		}
		if retry.Created != 1 || retry.Skipped != 2 {
			t.Errorf("retry created=%d skipped=%d, want 1/2", retry.Created, retry.Skipped)
		}
	})

	t.Run("record is written only after the sink confirms", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.OnWrite = func(call tu.SinkCall) {
			if _, err := store.Get(call.Reminder.SourceID); !errors.Is(err, shared.ErrRecordNotFound) {
				t.Errorf("record for %s existed before the write completed", call.Reminder.SourceID)
			}
		}

		if _, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(2), nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if store.Upserts != 2 {
			t.Errorf("Upserts = %d, want 2", store.Upserts)
		}
	})

	t.Run("duplicate source ids are skipped", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		tasks := sampleTasks(2)
		tasks = append(tasks, tasks[0])

		report, err := newTestEngine(sink, store).Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Created != 2 || report.Skipped != 1 {
			t.Errorf("created=%d skipped=%d, want 2/1", report.Created, report.Skipped)
		}
		if report.Results[2].State != StateSkipped || report.Results[2].Error == "" {
			t.Errorf("duplicate result = %+v", report.Results[2])
		}
		if got := sink.Count("create"); got != 2 {
			t.Errorf("sink creates = %d, want 2", got)
		}
	})

	t.Run("dry run plans without writing", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()

		report, err := newTestEngine(sink, store, func(o *EngineOpts) { o.DryRun = true }).
			Run(context.Background(), sampleTasks(3), nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !report.DryRun {
			t.Error("report should be marked as a dry run")
		}
		if report.Pending != 3 || report.Created != 0 {
			t.Errorf("pending=%d created=%d, want 3/0", report.Pending, report.Created)
		}
		if len(sink.Calls) != 0 || store.Upserts != 0 {
			t.Errorf("dry run wrote %d reminders and %d records", len(sink.Calls), store.Upserts)
		}
		for _, res := range report.Results {
			if res.State != StateCreatePending {
				t.Errorf("%s state = %s, want create_pending", res.SourceID, res.State)
			}
			if res.Calendar == "" {
				t.Errorf("%s has no planned calendar", res.SourceID)
			}
		}
	})

	t.Run("empty input does nothing", func(t *testing.T) {
		sink := newSink()
		sink.ListErr = errors.New("should not be called")

		report, err := newTestEngine(sink, tu.NewMemoryStore()).Run(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Total != 0 || report.Aborted {
			t.Errorf("report = %+v", report)
		}
	})

	t.Run("classifier decides calendars for new tasks", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		tasks := sampleTasks(2)
		tasks[0].Tags = []string{"office"}

		selector := calendar.NewSelector(calendar.SelectorOpts{
			Classifier: calendar.NewRuleClassifier(map[string][]string{"work": {"office"}}),
			Default:    "Personal",
		})
		report, err := newTestEngine(sink, store, func(o *EngineOpts) { o.Selector = selector }).
			Run(context.Background(), tasks, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := report.Results[0].Calendar; got != "Work" {
			t.Errorf("tagged task calendar = %q, want Work", got)
		}
		if got := report.Results[1].Calendar; got != "Personal" {
			t.Errorf("untagged task calendar = %q, want Personal", got)
		}
	})
}

func TestEngine_RunAborts(t *testing.T) {
	t.Run("destination unavailable during writes", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.FailFor = map[string]error{
			"t001": fmt.Errorf("%w: not authorized", shared.ErrDestinationUnavailable),
		}

		report, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(4), nil)
		if !errors.Is(err, shared.ErrRunAborted) || !errors.Is(err, shared.ErrDestinationUnavailable) {
			t.Fatalf("Run() error = %v, want run aborted + destination unavailable", err)
		}
		if report == nil || !report.Aborted || report.AbortReason == "" {
			t.Fatalf("report = %+v, want aborted partial report", report)
		}
		if report.Created != 1 || report.Failed != 1 || report.Pending != 2 {
			t.Errorf("created=%d failed=%d pending=%d, want 1/1/2", report.Created, report.Failed, report.Pending)
		}
	})

	t.Run("too many consecutive failures", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.CreateErr = errors.New("timeout")

		engine := newTestEngine(sink, store, func(o *EngineOpts) { o.MaxConsecutiveFailures = 2 })
		report, err := engine.Run(context.Background(), sampleTasks(5), nil)
		if !errors.Is(err, shared.ErrRunAborted) {
			t.Fatalf("Run() error = %v, want run aborted", err)
		}
		if report.Failed != 2 || report.Pending != 3 {
			t.Errorf("failed=%d pending=%d, want 2/3", report.Failed, report.Pending)
		}
	})

	t.Run("listing calendars fails", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.ListErr = errors.New("osascript exited 1")

		report, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(2), nil)
		if !errors.Is(err, shared.ErrDestinationUnavailable) {
			t.Fatalf("Run() error = %v, want destination unavailable", err)
		}
		if !report.Aborted || len(sink.Calls) != 0 {
			t.Errorf("aborted=%v writes=%d", report.Aborted, len(sink.Calls))
		}
	})

	t.Run("no calendars", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		sink.Calendars = nil

		_, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(1), nil)
		if !errors.Is(err, shared.ErrDestinationUnavailable) {
			t.Fatalf("Run() error = %v, want destination unavailable", err)
		}
	})

	t.Run("record store read fails", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		store.GetErr = errors.New("database is locked")

		report, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(2), nil)
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("Run() error = %v, want persistence error", err)
		}
		if !report.Aborted || len(sink.Calls) != 0 {
			t.Errorf("aborted=%v writes=%d", report.Aborted, len(sink.Calls))
		}
	})

	t.Run("record store write fails", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		store.UpsertErr = errors.New("disk full")

		report, err := newTestEngine(sink, store).Run(context.Background(), sampleTasks(3), nil)
		if !errors.Is(err, shared.ErrPersistence) || !errors.Is(err, shared.ErrRunAborted) {
			t.Fatalf("Run() error = %v, want aborted persistence error", err)
		}
		if got := sink.Count("create"); got != 1 {
			t.Errorf("sink creates = %d, want 1", got)
		}
		if report.Pending != 2 {
			t.Errorf("Pending = %d, want 2", report.Pending)
		}
	})

	t.Run("context canceled mid run", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sink.OnWrite = func(tu.SinkCall) { cancel() }

		report, err := newTestEngine(sink, store).Run(ctx, sampleTasks(3), nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context canceled", err)
		}
		if report.Created != 1 || report.Pending != 2 {
			t.Errorf("created=%d pending=%d, want 1/2", report.Created, report.Pending)
		}
		if store.Upserts != 1 {
			t.Errorf("Upserts = %d, want the confirmed write recorded", store.Upserts)
		}
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewEngine(EngineOpts{Store: tu.NewMemoryStore()}).Run(context.Background(), sampleTasks(1), nil)
		if !errors.Is(err, shared.ErrDestinationUnavailable) {
			t.Errorf("no sink: error = %v", err)
		}

		_, err = NewEngine(EngineOpts{Sink: newSink()}).Run(context.Background(), sampleTasks(1), nil)
		if !errors.Is(err, shared.ErrPersistence) {
			t.Errorf("no store: error = %v", err)
		}
	})
}

// openOnlySource returns open tasks plus any task named in filter.Tracked, the way the
// Things source treats the default filter.
type openOnlySource struct {
	tasks []models.SourceTask
}

func (s *openOnlySource) Name() string { return "open-only" }

func (s *openOnlySource) FetchTasks(ctx context.Context, filter models.TaskFilter) ([]models.SourceTask, error) {
	tracked := make(map[string]bool, len(filter.Tracked))
	for _, id := range filter.Tracked {
		tracked[id] = true
	}
	var out []models.SourceTask
	for _, task := range s.tasks {
		if task.Status == models.StatusOpen || tracked[task.ID] {
			out = append(out, task)
		}
	}
	return out, nil
}

func TestEngine_Export(t *testing.T) {
	t.Run("completing a synced task updates its reminder", func(t *testing.T) {
		sink, store := newSink(), tu.NewMemoryStore()
		engine := newTestEngine(sink, store)
		source := &openOnlySource{tasks: sampleTasks(2)}

		if _, err := engine.Export(context.Background(), source, models.TaskFilter{}, nil); err != nil {
			t.Fatalf("first Export() error = %v", err)
		}

		done := fixedNow.Add(-time.Hour)
		source.tasks[0].Status = models.StatusCompleted
		source.tasks[0].CompletedAt = &done

		report, err := engine.Export(context.Background(), source, models.TaskFilter{}, nil)
		if err != nil {
			t.Fatalf("second Export() error = %v", err)
		}
		if report.Total != 2 || report.Updated != 1 || report.Skipped != 1 || report.Created != 0 {
			t.Fatalf("report = total %d created %d updated %d skipped %d", report.Total, report.Created, report.Updated, report.Skipped)
		}
		if got := report.Results[0]; got.SourceID != "t000" || got.State != StateUpdated {
			t.Errorf("result = %+v, want t000 updated", got)
		}

		last := sink.Calls[len(sink.Calls)-1]
		if last.Op != "update" || !last.Reminder.Completed || last.Reminder.CompletedAt == nil {
			t.Errorf("last write = %s %+v, want a completed update", last.Op, last.Reminder)
		}
	})

	t.Run("untracked completed tasks stay out", func(t *testing.T) {
		source := &openOnlySource{tasks: sampleTasks(2)}
		source.tasks[1].Status = models.StatusCompleted

		report, err := newTestEngine(newSink(), tu.NewMemoryStore()).Export(context.Background(), source, models.TaskFilter{}, nil)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if report.Total != 1 || report.Created != 1 {
			t.Errorf("report = total %d created %d, want 1 and 1", report.Total, report.Created)
		}
	})

	t.Run("tracked ids join the caller's filter", func(t *testing.T) {
		store := tu.NewMemoryStore()
		store.Upsert(&models.SyncRecord{SourceID: "t001", DestinationID: "rem-9"})
		source := &tu.MockSource{Tasks: sampleTasks(2)}

		_, err := newTestEngine(newSink(), store).Export(context.Background(), source, models.TaskFilter{Tracked: []string{"x"}}, nil)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if got := strings.Join(source.LastFilter.Tracked, ","); got != "x,t001" {
			t.Errorf("Tracked = %s, want x,t001", got)
		}
	})

	t.Run("record listing failure is fatal before any read", func(t *testing.T) {
		store := tu.NewMemoryStore()
		store.ListErr = errors.New("database is locked")
		source := &tu.MockSource{Tasks: sampleTasks(1)}

		report, err := newTestEngine(newSink(), store).Export(context.Background(), source, models.TaskFilter{}, nil)
		if !errors.Is(err, shared.ErrPersistence) || report != nil {
			t.Errorf("Export() = %v, %v; want nil report and persistence error", report, err)
		}
		if source.Calls != 0 {
			t.Error("source should not be read")
		}
	})

	t.Run("reads from the source and syncs", func(t *testing.T) {
		source := &tu.MockSource{Tasks: sampleTasks(2)}
		filter := models.TaskFilter{Tag: "errand"}

		report, err := newTestEngine(newSink(), tu.NewMemoryStore()).Export(context.Background(), source, filter, nil)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if report.Created != 2 {
			t.Errorf("Created = %d, want 2", report.Created)
		}
		if source.LastFilter.Tag != "errand" {
			t.Errorf("filter not passed to source: %+v", source.LastFilter)
		}
	})

	t.Run("source failure is fatal before any write", func(t *testing.T) {
		sink := newSink()
		source := &tu.MockSource{Err: errors.New("no such table: TMTask")}

		report, err := newTestEngine(sink, tu.NewMemoryStore()).Export(context.Background(), source, models.TaskFilter{}, nil)
		if !errors.Is(err, shared.ErrSourceUnavailable) {
			t.Fatalf("Export() error = %v, want source unavailable", err)
		}
		if report != nil {
			t.Errorf("report = %+v, want nil", report)
		}
		if len(sink.Calls) != 0 {
			t.Errorf("sink received %d writes", len(sink.Calls))
		}
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := newTestEngine(newSink(), tu.NewMemoryStore()).Export(context.Background(), nil, models.TaskFilter{}, nil)
		if !errors.Is(err, shared.ErrSourceUnavailable) {
			t.Errorf("Export() error = %v", err)
		}
	})
}

func TestSyncReport(t *testing.T) {
	report := &SyncReport{
		RunID:      "run-1",
		StartedAt:  fixedNow,
		FinishedAt: fixedNow.Add(3 * time.Second),
		Results: []TaskResult{
			{SourceID: "a", State: StateCreated},
			{SourceID: "b", State: StateUpdateFailed},
			{SourceID: "c", State: StateSkipped},
			{SourceID: "d", State: StateUpdatePending},
		},
	}
	report.tally()

	if report.Total != 4 || report.Created != 1 || report.Failed != 1 || report.Skipped != 1 || report.Pending != 1 {
		t.Errorf("tally = %+v", report)
	}
	if got := report.Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v", got)
	}
	if got := report.Count(StateSkipped); got != 1 {
		t.Errorf("Count(skipped) = %d", got)
	}

	run := report.Run()
	if run.ID != "run-1" || run.Failed != 1 || run.FinishedAt == nil {
		t.Errorf("Run() = %+v", run)
	}
}
