package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gtasks "google.golang.org/api/tasks/v1"
)

// FlagPrefix marks flagged reminders in destinations without a flag field.
const FlagPrefix = "⚑ "

// GoogleTasksSink writes reminders as Google Tasks. Task lists play the role of calendars and
// destination IDs have the form "<listID>/<taskID>".
type GoogleTasksSink struct {
	svc    *gtasks.Service
	logger *log.Logger

	mu    sync.Mutex
	lists map[string]string // title -> list ID
}

// NewGoogleTasksSink creates a sink from client options, usually [option.WithTokenSource].
func NewGoogleTasksSink(ctx context.Context, logger *log.Logger, opts ...option.ClientOption) (*GoogleTasksSink, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	svc, err := gtasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDestinationUnavailable, err)
	}
	return &GoogleTasksSink{svc: svc, logger: logger, lists: make(map[string]string)}, nil
}

// Name returns "google".
func (s *GoogleTasksSink) Name() string { return shared.DestinationGoogleTasks }

// ListCalendars returns the titles of the user's task lists.
func (s *GoogleTasksSink) ListCalendars(ctx context.Context) ([]string, error) {
	lists := make(map[string]string)
	var names []string

	err := s.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(page *gtasks.TaskLists) error {
		for _, l := range page.Items {
			if _, dup := lists[l.Title]; !dup {
				names = append(names, l.Title)
			}
			lists[l.Title] = l.Id
		}
		return nil
	})
	if err != nil {
		return nil, googleError(err)
	}

	s.mu.Lock()
	s.lists = lists
	s.mu.Unlock()
	return names, nil
}

// CreateReminder inserts r into the list titled r.Calendar.
func (s *GoogleTasksSink) CreateReminder(ctx context.Context, r models.MappedReminder) (string, error) {
	listID, err := s.listID(ctx, r.Calendar)
	if err != nil {
		return "", &shared.SinkWriteError{SourceID: r.SourceID, Err: err}
	}

	created, err := s.svc.Tasks.Insert(listID, toGoogleTask(r)).Context(ctx).Do()
	if err != nil {
		return "", &shared.SinkWriteError{SourceID: r.SourceID, Err: googleError(err)}
	}

	id := listID + "/" + created.Id
	s.logger.Debug("created google task", "source_id", r.SourceID, "id", id)
	return id, nil
}

// UpdateReminder patches the task at destinationID with every mapped field.
func (s *GoogleTasksSink) UpdateReminder(ctx context.Context, destinationID string, r models.MappedReminder) error {
	listID, taskID, ok := strings.Cut(destinationID, "/")
	if !ok || listID == "" || taskID == "" {
		return &shared.SinkWriteError{SourceID: r.SourceID, Err: fmt.Errorf("malformed google task id %q", destinationID)}
	}

	if _, err := s.svc.Tasks.Patch(listID, taskID, toGoogleTask(r)).Context(ctx).Do(); err != nil {
		return &shared.SinkWriteError{SourceID: r.SourceID, Err: googleError(err)}
	}
	s.logger.Debug("updated google task", "source_id", r.SourceID, "id", destinationID)
	return nil
}

func (s *GoogleTasksSink) listID(ctx context.Context, title string) (string, error) {
	s.mu.Lock()
	id, ok := s.lists[title]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := s.ListCalendars(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.lists[title]; ok {
		return id, nil
	}
	return "", fmt.Errorf("task list %q not found", title)
}

// toGoogleTask converts r. Google Tasks keeps only the date part of due.
func toGoogleTask(r models.MappedReminder) *gtasks.Task {
	title := r.Title
	if r.Flagged {
		title = FlagPrefix + title
	}

	task := &gtasks.Task{
		Title:  title,
		Notes:  r.Notes,
		Status: "needsAction",
	}

	if r.Due != nil {
		d := r.Due
		task.Due = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	} else {
		task.NullFields = append(task.NullFields, "Due")
	}

	if r.Completed {
		task.Status = "completed"
		at := time.Now()
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		completed := at.UTC().Format(time.RFC3339)
		task.Completed = &completed
	} else {
		task.NullFields = append(task.NullFields, "Completed")
	}
	return task
}

// googleError maps lost authorization onto [shared.ErrDestinationUnavailable].
func googleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: google tasks: %v", shared.ErrDestinationUnavailable, err)
		}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %w: %v", shared.ErrDestinationUnavailable, shared.ErrAuthFailed, err)
	}
	return err
}

// GoogleOAuthConfig reads an OAuth client file downloaded from the Google Cloud console.
func GoogleOAuthConfig(credentialsPath, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(shared.ExpandPath(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMissingCredentials, err)
	}

	config, err := google.ConfigFromJSON(b, gtasks.TasksScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	if redirectURL != "" {
		config.RedirectURL = redirectURL
	}
	return config, nil
}

// LoadToken reads a token saved by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(shared.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("%w: corrupt token file: %v", shared.ErrNotAuthenticated, err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	path = shared.ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(tok)
}

// GoogleClientOptions loads the saved token and returns options for [NewGoogleTasksSink].
func GoogleClientOptions(ctx context.Context, credentialsPath, tokenPath string) ([]option.ClientOption, error) {
	config, err := GoogleOAuthConfig(credentialsPath, "")
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(config.TokenSource(ctx, tok))}, nil
}
