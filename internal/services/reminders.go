package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

// ScriptRunner executes a JavaScript for Automation script with a single JSON argument and
// returns its standard output.
type ScriptRunner func(ctx context.Context, script string, arg []byte) ([]byte, error)

// OsascriptRunner runs scripts with osascript. It is only available on macOS.
func OsascriptRunner(ctx context.Context, script string, arg []byte) ([]byte, error) {
	if err := shared.RequireDarwin("Apple Reminders"); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "osascript", "-l", "JavaScript", "-e", script, string(arg))
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("osascript: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("osascript: %w", err)
	}
	return out, nil
}

// Reminders scripts. Each receives its payload as JSON in argv[0] and prints JSON.
const (
	listCalendarsScript = `
function run(argv) {
	const app = Application('Reminders');
	return JSON.stringify(app.lists.name());
}`

	writeReminderScript = `
function run(argv) {
	const p = JSON.parse(argv[0]);
	const app = Application('Reminders');
	let r;
	if (p.id) {
		r = app.reminders.byId(p.id);
		r.name();
	} else {
		const lists = app.lists.whose({name: p.calendar});
		if (lists.length === 0) {
			throw new Error('list not found: ' + p.calendar);
		}
		r = app.Reminder({name: p.title});
		lists[0].reminders.push(r);
	}
	r.name = p.title;
	r.body = p.notes;
	r.dueDate = p.due ? new Date(p.due) : null;
	r.remindMeDate = p.remindAt ? new Date(p.remindAt) : null;
	r.flagged = p.flagged;
	r.completed = p.completed;
	if (p.completed && p.completedAt) {
		r.completionDate = new Date(p.completedAt);
	}
	return JSON.stringify({id: r.id()});
}`
)

// reminderPayload is the JSON handed to the write script.
type reminderPayload struct {
	ID          string     `json:"id,omitempty"`
	Calendar    string     `json:"calendar"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes"`
	Due         *time.Time `json:"due,omitempty"`
	RemindAt    *time.Time `json:"remindAt,omitempty"`
	Flagged     bool       `json:"flagged"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RemindersOpts configures a [RemindersSink].
type RemindersOpts struct {
	Runner  ScriptRunner  // Defaults to [OsascriptRunner]
	Timeout time.Duration // Per script call; zero means no timeout
	Logger  *log.Logger
}

// RemindersSink writes reminders into Apple Reminders through JavaScript for Automation.
type RemindersSink struct {
	run     ScriptRunner
	timeout time.Duration
	logger  *log.Logger
}

// NewRemindersSink creates a [RemindersSink].
func NewRemindersSink(opts RemindersOpts) *RemindersSink {
	if opts.Runner == nil {
		opts.Runner = OsascriptRunner
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &RemindersSink{run: opts.Runner, timeout: opts.Timeout, logger: opts.Logger}
}

// Name returns "reminders".
func (s *RemindersSink) Name() string { return shared.DestinationReminders }

// ListCalendars returns the names of all reminder lists.
func (s *RemindersSink) ListCalendars(ctx context.Context) ([]string, error) {
	out, err := s.exec(ctx, listCalendarsScript, []byte("{}"))
	if err != nil {
		return nil, s.classify(err)
	}

	var names []string
	if err := json.Unmarshal(bytes.TrimSpace(out), &names); err != nil {
		return nil, fmt.Errorf("%w: unexpected list output: %v", shared.ErrDestinationUnavailable, err)
	}
	return names, nil
}

// CreateReminder creates r in the list named r.Calendar.
func (s *RemindersSink) CreateReminder(ctx context.Context, r models.MappedReminder) (string, error) {
	id, err := s.write(ctx, "", r)
	if err != nil {
		return "", &shared.SinkWriteError{SourceID: r.SourceID, Err: err}
	}
	s.logger.Debug("created reminder", "source_id", r.SourceID, "id", id, "list", r.Calendar)
	return id, nil
}

// UpdateReminder overwrites every mapped field of the reminder with destinationID. The
// reminder stays in its current list.
func (s *RemindersSink) UpdateReminder(ctx context.Context, destinationID string, r models.MappedReminder) error {
	if destinationID == "" {
		return &shared.SinkWriteError{SourceID: r.SourceID, Err: errors.New("missing reminder id")}
	}
	if _, err := s.write(ctx, destinationID, r); err != nil {
		return &shared.SinkWriteError{SourceID: r.SourceID, Err: err}
	}
	s.logger.Debug("updated reminder", "source_id", r.SourceID, "id", destinationID)
	return nil
}

func (s *RemindersSink) write(ctx context.Context, id string, r models.MappedReminder) (string, error) {
	payload := reminderPayload{
		ID:        id,
		Calendar:  r.Calendar,
		Title:     r.Title,
		Notes:     r.Notes,
		Due:       r.Due,
		RemindAt:  r.EarlyAlertAt(),
		Flagged:   r.Flagged,
		Completed: r.Completed,
	}
	if r.Completed {
		payload.CompletedAt = r.CompletedAt
	}

	arg, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	out, err := s.exec(ctx, writeReminderScript, arg)
	if err != nil {
		return "", s.classify(err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &result); err != nil {
		return "", fmt.Errorf("unexpected script output %q: %w", strings.TrimSpace(string(out)), err)
	}
	if result.ID == "" {
		return "", errors.New("script returned no reminder id")
	}
	return result.ID, nil
}

func (s *RemindersSink) exec(ctx context.Context, script string, arg []byte) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.run(ctx, script, arg)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: Reminders did not answer within %s", shared.ErrTimeout, s.timeout)
	}
	return out, err
}

// classify marks permission failures so the run stops instead of failing every task.
func (s *RemindersSink) classify(err error) error {
	if errors.Is(err, shared.ErrDestinationUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"-1743", "not authorized", "not allowed", "-600"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: Reminders access denied or unavailable: %v", shared.ErrDestinationUnavailable, err)
		}
	}
	return err
}
