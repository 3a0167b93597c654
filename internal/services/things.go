package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

// ThingsContainer is the group container holding the Things 3 database, relative to the home directory.
const ThingsContainer = "Library/Group Containers/JLMPQHK86H.com.culturedcode.ThingsMac"

// Things column values
const (
	thingsTypeTodo = 0

	thingsStatusCanceled  = 2
	thingsStatusCompleted = 3

	thingsStartInbox   = 0
	thingsStartAnytime = 1
	thingsStartSomeday = 2
)

// ThingsSource reads to-dos from a Things 3 SQLite database. The database is only ever read.
type ThingsSource struct {
	db     *sql.DB
	logger *log.Logger
	owned  bool
	now    func() time.Time
	loc    *time.Location
}

// ThingsOpts configures a [ThingsSource].
type ThingsOpts struct {
	Logger   *log.Logger
	Now      func() time.Time // Decides which dated tasks are in Today
	Location *time.Location   // Zone for calendar dates, defaults to [time.Local]
}

// DiscoverThingsDatabase finds main.sqlite inside the Things group container under home.
func DiscoverThingsDatabase(home string) (string, error) {
	container := filepath.Join(home, ThingsContainer)
	patterns := []string{
		filepath.Join(container, "ThingsData-*", "Things Database.thingsdatabase", "main.sqlite"),
		filepath.Join(container, "Things Database.thingsdatabase", "main.sqlite"),
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("%w: no Things database found under %s", shared.ErrSourceUnavailable, container)
}

// NewThingsSource opens the database at path read-only. An empty path is discovered under the
// user's home directory.
func NewThingsSource(path string, opts ThingsOpts) (*ThingsSource, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		if path, err = DiscoverThingsDatabase(home); err != nil {
			return nil, err
		}
	}

	abs, err := filepath.Abs(shared.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	db, err := shared.NewReadOnlyDatabase(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	s := NewThingsSourceFromDB(db, opts)
	s.owned = true
	s.logger.Debug("opened Things database", "path", abs)
	return s, nil
}

// NewThingsSourceFromDB reads from an already open database.
func NewThingsSourceFromDB(db *sql.DB, opts ThingsOpts) *ThingsSource {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &ThingsSource{db: db, logger: opts.Logger, now: opts.Now, loc: opts.Location}
}

// Name returns "things".
func (s *ThingsSource) Name() string { return "things" }

// Close closes the database when the source opened it.
func (s *ThingsSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is readable and looks like a Things database.
func (s *ThingsSource) Ping(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM TMTask`).Scan(&n); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	return nil
}

// FetchTasks reads to-dos matching filter, ordered as in Things.
func (s *ThingsSource) FetchTasks(ctx context.Context, filter models.TaskFilter) ([]models.SourceTask, error) {
	query, args := buildTaskQuery(filter)

	tasks, err := s.queryTasks(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tasks: %v", shared.ErrSourceUnavailable, err)
	}

	if len(filter.Views) > 0 {
		tasks = filterViews(tasks, filter.Views)
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	if err := s.attachTags(ctx, tasks); err != nil {
		return nil, fmt.Errorf("%w: reading tags: %v", shared.ErrSourceUnavailable, err)
	}
	if err := s.attachChecklists(ctx, tasks); err != nil {
		return nil, fmt.Errorf("%w: reading checklists: %v", shared.ErrSourceUnavailable, err)
	}

	s.logger.Debug("read Things tasks", "count", len(tasks))
	return tasks, nil
}

// Tags returns every tag title, sorted.
func (s *ThingsSource) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM TMTag WHERE title IS NOT NULL ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		tags = append(tags, title)
	}
	return tags, rows.Err()
}

func buildTaskQuery(filter models.TaskFilter) (string, []any) {
	query := `
		SELECT
			t.uuid, COALESCE(t.title, ''), COALESCE(t.notes, ''), t.status, t.trashed,
			t.start, t.startDate, t.deadline, t.stopDate,
			COALESCE(a.title, pa.title, ''), COALESCE(p.title, '')
		FROM TMTask t
		LEFT JOIN TMTask h ON h.uuid = t.heading
		LEFT JOIN TMTask p ON p.uuid = COALESCE(t.project, h.project)
		LEFT JOIN TMArea a ON a.uuid = t.area
		LEFT JOIN TMArea pa ON pa.uuid = p.area
		WHERE t.type = ?
	`
	args := []any{thingsTypeTodo}

	tracked := ""
	var trackedIDs string
	if len(filter.Tracked) > 0 {
		ids, _ := json.Marshal(filter.Tracked)
		tracked = " OR t.uuid IN (SELECT value FROM json_each(?))"
		trackedIDs = string(ids)
	}

	if !filter.All {
		statuses := []string{"0"}
		if filter.IncludeCompleted || filter.CompletedSince != nil {
			statuses = append(statuses, fmt.Sprint(thingsStatusCompleted))
		}
		if filter.IncludeCanceled {
			statuses = append(statuses, fmt.Sprint(thingsStatusCanceled))
		}
		query += " AND ((t.trashed = 0 AND t.status IN (" + strings.Join(statuses, ", ") + "))" + tracked + ")"
		if tracked != "" {
			args = append(args, trackedIDs)
		}
	}

	if filter.CompletedSince != nil {
		query += " AND (t.status <> ? OR t.stopDate >= ?" + tracked + ")"
		args = append(args, thingsStatusCompleted, float64(filter.CompletedSince.Unix()))
		if tracked != "" {
			args = append(args, trackedIDs)
		}
	}

	if filter.OnlyWithDeadlines {
		query += " AND t.deadline IS NOT NULL"
	}

	if filter.Tag != "" {
		query += `
			AND t.uuid IN (
				SELECT tt.tasks FROM TMTaskTag tt
				JOIN TMTag g ON g.uuid = tt.tags
				WHERE g.title = ? COLLATE NOCASE
			)`
		args = append(args, filter.Tag)
	}

	query += ` ORDER BY t."index", t.uuid`
	return query, args
}

func (s *ThingsSource) queryTasks(ctx context.Context, query string, args []any) ([]models.SourceTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	today := dateOf(s.now().In(s.loc), s.loc)

	var tasks []models.SourceTask
	for rows.Next() {
		var (
			task                models.SourceTask
			status, start       int
			trashed             bool
			startDate, deadline sql.NullInt64
			stopDate            sql.NullFloat64
			area, project       string
		)
		if err := rows.Scan(
			&task.ID, &task.Title, &task.Notes, &status, &trashed,
			&start, &startDate, &deadline, &stopDate,
			&area, &project,
		); err != nil {
			return nil, err
		}

		task.Status = thingsStatus(status, trashed)

		var scheduled *time.Time
		if startDate.Valid {
			scheduled = unpackDate(startDate.Int64, s.loc)
		}
		task.List = thingsView(start, scheduled, today)

		if deadline.Valid {
			task.Due = unpackDate(deadline.Int64, s.loc)
		}
		if task.Due == nil {
			task.Due = scheduled
		}

		if stopDate.Valid && stopDate.Float64 > 0 && task.Status != models.StatusOpen {
			sec := int64(stopDate.Float64)
			at := time.Unix(sec, int64((stopDate.Float64-float64(sec))*1e9)).In(s.loc)
			task.CompletedAt = &at
		}

		for _, segment := range []string{area, project} {
			if segment = strings.TrimSpace(segment); segment != "" {
				task.Path = append(task.Path, segment)
			}
		}

		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *ThingsSource) attachTags(ctx context.Context, tasks []models.SourceTask) error {
	byTask, err := s.groupStrings(ctx, `
		SELECT tt.tasks, g.title
		FROM TMTaskTag tt
		JOIN TMTag g ON g.uuid = tt.tags
		WHERE g.title IS NOT NULL
		ORDER BY g."index", g.title
	`)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].Tags = byTask[tasks[i].ID]
	}
	return nil
}

func (s *ThingsSource) attachChecklists(ctx context.Context, tasks []models.SourceTask) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task, COALESCE(title, ''), status
		FROM TMChecklistItem
		ORDER BY task, "index"
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	byTask := make(map[string][]models.ChecklistItem)
	for rows.Next() {
		var (
			taskID, title string
			status        int
		)
		if err := rows.Scan(&taskID, &title, &status); err != nil {
			return err
		}
		byTask[taskID] = append(byTask[taskID], models.ChecklistItem{
			Text:      title,
			Completed: status == thingsStatusCompleted,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tasks {
		tasks[i].Checklist = byTask[tasks[i].ID]
	}
	return nil
}

func (s *ThingsSource) groupStrings(ctx context.Context, query string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = append(out[key], value)
	}
	return out, rows.Err()
}

func thingsStatus(status int, trashed bool) models.TaskStatus {
	switch {
	case trashed:
		return models.StatusTrashed
	case status == thingsStatusCompleted:
		return models.StatusCompleted
	case status == thingsStatusCanceled:
		return models.StatusCanceled
	default:
		return models.StatusOpen
	}
}

// thingsView derives the list a task shows in from its start bucket and start date.
func thingsView(start int, scheduled *time.Time, today time.Time) models.ListView {
	switch start {
	case thingsStartInbox:
		return models.ViewInbox
	case thingsStartAnytime:
		if scheduled != nil && !scheduled.After(today) {
			return models.ViewToday
		}
		return models.ViewAnytime
	case thingsStartSomeday:
		if scheduled != nil {
			return models.ViewUpcoming
		}
		return models.ViewSomeday
	default:
		return models.ViewAnytime
	}
}

// unpackDate decodes the Things date encoding year<<16 | month<<12 | day<<7.
func unpackDate(v int64, loc *time.Location) *time.Time {
	if v <= 0 {
		return nil
	}
	year := int(v >> 16)
	month := time.Month((v >> 12) & 0xF)
	day := int((v >> 7) & 0x1F)
	if month < time.January || month > time.December || day == 0 {
		return nil
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return &d
}

// PackDate is the inverse of the Things date decoding.
func PackDate(t time.Time) int64 {
	return int64(t.Year())<<16 | int64(t.Month())<<12 | int64(t.Day())<<7
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func filterViews(tasks []models.SourceTask, views []models.ListView) []models.SourceTask {
	want := make(map[models.ListView]bool, len(views))
	for _, v := range views {
		want[v] = true
	}

	out := tasks[:0]
	for _, t := range tasks {
		if want[t.List] {
			out = append(out, t)
		}
	}
	return out
}
