package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

var thingsNow = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const thingsSchema = `
CREATE TABLE TMArea (uuid TEXT PRIMARY KEY, title TEXT, "index" INTEGER);
CREATE TABLE TMTask (
	uuid TEXT PRIMARY KEY, title TEXT, notes TEXT, status INTEGER DEFAULT 0, trashed INTEGER DEFAULT 0,
	type INTEGER DEFAULT 0, start INTEGER DEFAULT 1, startDate INTEGER, deadline INTEGER, stopDate REAL,
	project TEXT, area TEXT, heading TEXT, "index" INTEGER DEFAULT 0
);
CREATE TABLE TMTag (uuid TEXT PRIMARY KEY, title TEXT, "index" INTEGER);
CREATE TABLE TMTaskTag (tasks TEXT, tags TEXT);
CREATE TABLE TMChecklistItem (uuid TEXT PRIMARY KEY, task TEXT, title TEXT, status INTEGER DEFAULT 0, "index" INTEGER);
`

// writeThingsFixture creates a Things-shaped database file and returns its path.
func writeThingsFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main.sqlite")
	db, err := shared.NewDatabase(path)
	if err != nil {
		t.Fatalf("failed to create fixture database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(thingsSchema); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}

	stop := func(t time.Time) float64 { return float64(t.Unix()) }
	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO TMArea VALUES ('A1', 'Home', 1)`, nil},
		{`INSERT INTO TMTask (uuid, title, type, area, "index") VALUES ('P1', 'Finances', 1, 'A1', 0)`, nil},
		{`INSERT INTO TMTask (uuid, title, type, project, "index") VALUES ('H1', 'Bills', 2, 'P1', 0)`, nil},
		{`INSERT INTO TMTask (uuid, title, notes, start, deadline, heading, "index") VALUES ('T1', 'Pay rent', 'Landlord: Sam', 1, ?, 'H1', 1)`,
			[]any{PackDate(day(2024, 6, 10))}},
		{`INSERT INTO TMTask (uuid, title, start, "index") VALUES ('T2', 'Inbox thing', 0, 2)`, nil},
		{`INSERT INTO TMTask (uuid, title, start, startDate, "index") VALUES ('T3', 'Today thing', 1, ?, 3)`,
			[]any{PackDate(day(2024, 6, 5))}},
		{`INSERT INTO TMTask (uuid, title, start, "index") VALUES ('T4', 'Someday thing', 2, 4)`, nil},
		{`INSERT INTO TMTask (uuid, title, start, startDate, "index") VALUES ('T5', 'Upcoming thing', 2, ?, 5)`,
			[]any{PackDate(day(2024, 6, 20))}},
		{`INSERT INTO TMTask (uuid, title, status, stopDate, "index") VALUES ('T6', 'Done recently', 3, ?, 6)`,
			[]any{stop(time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC))}},
		{`INSERT INTO TMTask (uuid, title, status, stopDate, "index") VALUES ('T7', 'Done long ago', 3, ?, 7)`,
			[]any{stop(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))}},
		{`INSERT INTO TMTask (uuid, title, status, "index") VALUES ('T8', 'Canceled thing', 2, 8)`, nil},
		{`INSERT INTO TMTask (uuid, title, trashed, "index") VALUES ('T9', 'Trashed thing', 1, 9)`, nil},
		{`INSERT INTO TMTask (uuid, title, project, "index") VALUES ('T10', 'Project task', 'P1', 10)`, nil},
		{`INSERT INTO TMTag VALUES ('G1', 'bills', 1), ('G2', 'monthly', 2)`, nil},
		{`INSERT INTO TMTaskTag VALUES ('T1', 'G2'), ('T1', 'G1')`, nil},
		{`INSERT INTO TMChecklistItem VALUES ('C2', 'T1', 'Mail it', 0, 2), ('C1', 'T1', 'Get cheque', 3, 1)`, nil},
	}
	for _, s := range statements {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("fixture insert failed: %v\n%s", err, s.query)
		}
	}
	return path
}

func openFixture(t *testing.T) *ThingsSource {
	t.Helper()
	src, err := NewThingsSource(writeThingsFixture(t), ThingsOpts{
		Now:      func() time.Time { return thingsNow },
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("NewThingsSource() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func ids(tasks []models.SourceTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestThingsSource_FetchTasks(t *testing.T) {
	src := openFixture(t)
	ctx := context.Background()
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter models.TaskFilter
		want   []string
	}{
		{name: "default is open and not trashed", want: []string{"T1", "T2", "T3", "T4", "T5", "T10"}},
		{name: "include completed", filter: models.TaskFilter{IncludeCompleted: true},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T10"}},
		{name: "completed since", filter: models.TaskFilter{CompletedSince: &since},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T6", "T10"}},
		{name: "include canceled", filter: models.TaskFilter{IncludeCanceled: true},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T8", "T10"}},
		{name: "all", filter: models.TaskFilter{All: true},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10"}},
		{name: "only deadlines", filter: models.TaskFilter{OnlyWithDeadlines: true}, want: []string{"T1"}},
		{name: "tag ignores case", filter: models.TaskFilter{Tag: "BILLS"}, want: []string{"T1"}},
		{name: "views", filter: models.TaskFilter{Views: []models.ListView{models.ViewToday, models.ViewInbox}},
			want: []string{"T2", "T3"}},
		{name: "no matches", filter: models.TaskFilter{Tag: "nope"}, want: []string{}},
		{name: "tracked in any status", filter: models.TaskFilter{Tracked: []string{"T6", "T8", "T9", "gone"}},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T6", "T8", "T9", "T10"}},
		{name: "tracked outside completed window", filter: models.TaskFilter{CompletedSince: &since, Tracked: []string{"T7"}},
			want: []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T10"}},
		{name: "tracked still scoped by tag", filter: models.TaskFilter{Tag: "bills", Tracked: []string{"T6"}},
			want: []string{"T1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := src.FetchTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FetchTasks() error = %v", err)
			}
			if got := ids(tasks); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FetchTasks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThingsSource_TrackedStatus(t *testing.T) {
	src := openFixture(t)

	tasks, err := src.FetchTasks(context.Background(), models.TaskFilter{Tracked: []string{"T7", "T8", "T9"}})
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}

	got := map[string]models.TaskStatus{}
	for _, task := range tasks {
		got[task.ID] = task.Status
	}
	want := map[string]models.TaskStatus{
		"T7": models.StatusCompleted,
		"T8": models.StatusCanceled,
		"T9": models.StatusTrashed,
	}
	for id, status := range want {
		if got[id] != status {
			t.Errorf("%s status = %q, want %q", id, got[id], status)
		}
	}
}

func TestThingsSource_TaskFields(t *testing.T) {
	src := openFixture(t)

	tasks, err := src.FetchTasks(context.Background(), models.TaskFilter{All: true})
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}
	byID := make(map[string]models.SourceTask)
	for _, task := range tasks {
		byID[task.ID] = task
	}

	rent := byID["T1"]
	if rent.Title != "Pay rent" || rent.Notes != "Landlord: Sam" {
		t.Errorf("title/notes = %q/%q", rent.Title, rent.Notes)
	}
	if rent.Due == nil || !rent.Due.Equal(day(2024, 6, 10)) {
		t.Errorf("Due = %v, want 2024-06-10", rent.Due)
	}
	if rent.List != models.ViewAnytime {
		t.Errorf("List = %s, want anytime", rent.List)
	}
	if want := []string{"Home", "Finances"}; !reflect.DeepEqual(rent.Path, want) {
		t.Errorf("Path = %v, want %v", rent.Path, want)
	}
	if want := []string{"bills", "monthly"}; !reflect.DeepEqual(rent.Tags, want) {
		t.Errorf("Tags = %v, want %v", rent.Tags, want)
	}
	wantChecklist := []models.ChecklistItem{{Text: "Get cheque", Completed: true}, {Text: "Mail it"}}
	if !reflect.DeepEqual(rent.Checklist, wantChecklist) {
		t.Errorf("Checklist = %+v, want %+v", rent.Checklist, wantChecklist)
	}

	views := map[string]models.ListView{
		"T2": models.ViewInbox,
		"T3": models.ViewToday,
		"T4": models.ViewSomeday,
		"T5": models.ViewUpcoming,
	}
	for id, want := range views {
		if got := byID[id].List; got != want {
			t.Errorf("%s List = %s, want %s", id, got, want)
		}
	}

	if due := byID["T3"].Due; due == nil || !due.Equal(day(2024, 6, 5)) {
		t.Errorf("start date should be the due fallback, got %v", due)
	}

	statuses := map[string]models.TaskStatus{
		"T1": models.StatusOpen,
		"T6": models.StatusCompleted,
		"T8": models.StatusCanceled,
		"T9": models.StatusTrashed,
	}
	for id, want := range statuses {
		if got := byID[id].Status; got != want {
			t.Errorf("%s Status = %s, want %s", id, got, want)
		}
	}

	done := byID["T6"].CompletedAt
	if done == nil || !done.Equal(time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CompletedAt = %v", done)
	}
	if byID["T1"].CompletedAt != nil {
		t.Error("open task should have no completion time")
	}

	if want := []string{"Home", "Finances"}; !reflect.DeepEqual(byID["T10"].Path, want) {
		t.Errorf("project task Path = %v, want %v", byID["T10"].Path, want)
	}
	if len(byID["T2"].Path) != 0 {
		t.Errorf("inbox task Path = %v, want empty", byID["T2"].Path)
	}
}

func TestThingsSource_Tags(t *testing.T) {
	src := openFixture(t)
	tags, err := src.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if want := []string{"bills", "monthly"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("Tags() = %v, want %v", tags, want)
	}
}

func TestThingsSource_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewThingsSource(filepath.Join(t.TempDir(), "nope.sqlite"), ThingsOpts{})
		if !errors.Is(err, shared.ErrSourceUnavailable) {
			t.Errorf("expected ErrSourceUnavailable, got %v", err)
		}
	})

	t.Run("not a Things database", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)

		src := NewThingsSourceFromDB(db, ThingsOpts{})
		if _, err := src.FetchTasks(context.Background(), models.TaskFilter{}); !errors.Is(err, shared.ErrSourceUnavailable) {
			t.Errorf("FetchTasks() error = %v, want ErrSourceUnavailable", err)
		}
		if err := src.Ping(context.Background()); !errors.Is(err, shared.ErrSourceUnavailable) {
			t.Errorf("Ping() error = %v, want ErrSourceUnavailable", err)
		}
		if err := src.Close(); err != nil {
			t.Errorf("Close() on borrowed db = %v", err)
		}
	})

	t.Run("read only", func(t *testing.T) {
		src := openFixture(t)
		if _, err := src.db.Exec(`DELETE FROM TMTask`); err == nil {
			t.Error("expected the source database to reject writes")
		}
	})
}

func TestDiscoverThingsDatabase(t *testing.T) {
	home := t.TempDir()
	if _, err := DiscoverThingsDatabase(home); !errors.Is(err, shared.ErrSourceUnavailable) {
		t.Errorf("empty home: expected ErrSourceUnavailable, got %v", err)
	}

	dir := filepath.Join(home, ThingsContainer, "ThingsData-ABC12", "Things Database.thingsdatabase")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "main.sqlite")
	if err := os.WriteFile(want, nil, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiscoverThingsDatabase(home)
	if err != nil {
		t.Fatalf("DiscoverThingsDatabase() error = %v", err)
	}
	if got != want {
		t.Errorf("DiscoverThingsDatabase() = %q, want %q", got, want)
	}
}

func TestThingsDates(t *testing.T) {
	d := day(2024, 12, 31)
	got := unpackDate(PackDate(d), time.UTC)
	if got == nil || !got.Equal(d) {
		t.Errorf("round trip = %v, want %v", got, d)
	}

	for _, v := range []int64{0, -5, 2024 << 16} {
		if got := unpackDate(v, time.UTC); got != nil {
			t.Errorf("unpackDate(%d) = %v, want nil", v, got)
		}
	}

	today := day(2024, 6, 5)
	past, future := day(2024, 6, 1), day(2024, 6, 9)
	tests := []struct {
		start     int
		scheduled *time.Time
		want      models.ListView
	}{
		{thingsStartInbox, nil, models.ViewInbox},
		{thingsStartInbox, &past, models.ViewInbox},
		{thingsStartAnytime, nil, models.ViewAnytime},
		{thingsStartAnytime, &today, models.ViewToday},
		{thingsStartAnytime, &past, models.ViewToday},
		{thingsStartAnytime, &future, models.ViewAnytime},
		{thingsStartSomeday, nil, models.ViewSomeday},
		{thingsStartSomeday, &future, models.ViewUpcoming},
	}
	for _, tt := range tests {
		if got := thingsView(tt.start, tt.scheduled, today); got != tt.want {
			t.Errorf("thingsView(%d, %v) = %s, want %s", tt.start, tt.scheduled, got, tt.want)
		}
	}
}
