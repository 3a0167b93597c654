package calendar

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
	"golang.org/x/time/rate"
)

// SelectorOpts configures a [Selector].
type SelectorOpts struct {
	Classifier        Classifier  // Optional; nil always uses the fallback
	Default           string      // Preferred fallback calendar
	Logger            *log.Logger // Defaults to a discarding logger
	Workers           int         // Concurrent classifications in SelectAll (default 1)
	RequestsPerSecond float64     // Classifier call rate in SelectAll; <= 0 is unlimited
}

// Selector picks the destination calendar for each task.
//
// It never fails: a classifier error or an answer that is not an available calendar falls
// back to [Selector.Fallback]. Decisions are cached by source ID for the selector's life,
// which is one run.
type Selector struct {
	classifier Classifier
	def        string
	logger     *log.Logger
	workers    int
	rps        float64

	mu    sync.Mutex
	cache map[string]string
}

// NewSelector creates a [Selector].
func NewSelector(opts SelectorOpts) *Selector {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Selector{
		classifier: opts.Classifier,
		def:        opts.Default,
		logger:     opts.Logger,
		workers:    opts.Workers,
		rps:        opts.RequestsPerSecond,
		cache:      make(map[string]string),
	}
}

// Select returns a calendar from available for task. It returns "" only when available is empty.
func (s *Selector) Select(ctx context.Context, task models.SourceTask, available []string) string {
	if len(available) == 0 {
		return ""
	}
	if cal, ok := s.cached(task.ID); ok {
		return cal
	}

	cal := s.classify(ctx, task, available)
	s.store(task.ID, cal)
	return cal
}

// SelectAll resolves calendars for many tasks, in parallel when configured, and returns
// them in the order of tasks. A source ID appearing more than once is classified once.
func (s *Selector) SelectAll(ctx context.Context, tasks []models.SourceTask, available []string) []string {
	results := make([]string, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	first := make(map[string]int, len(tasks))
	var unique []int
	for i, t := range tasks {
		if _, seen := first[t.ID]; !seen {
			first[t.ID] = i
			unique = append(unique, i)
		}
	}

	limit := rate.Inf
	if s.rps > 0 {
		limit = rate.Limit(s.rps)
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := make(chan int, len(unique))
	for _, i := range unique {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, len(unique)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if _, ok := s.cached(tasks[i].ID); !ok {
					if err := limiter.Wait(ctx); err != nil {
						results[i] = s.Fallback(available)
						continue
					}
				}
				results[i] = s.Select(ctx, tasks[i], available)
			}
		}()
	}
	wg.Wait()

	for i, t := range tasks {
		results[i] = results[first[t.ID]]
	}
	return results
}

// Fallback returns the configured default when it is available, else the alphabetically
// first available calendar. Matching is case-insensitive.
func (s *Selector) Fallback(available []string) string {
	if cal, ok := Resolve(s.def, available); ok {
		return cal
	}
	if len(available) == 0 {
		return ""
	}
	sorted := append([]string(nil), available...)
	sort.Strings(sorted)
	return sorted[0]
}

// Resolve finds name in available ignoring case and surrounding space, returning the
// available spelling.
func Resolve(name string, available []string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, cal := range available {
		if cal == name {
			return cal, true
		}
	}
	for _, cal := range available {
		if strings.EqualFold(strings.TrimSpace(cal), name) {
			return cal, true
		}
	}
	return "", false
}

func (s *Selector) classify(ctx context.Context, task models.SourceTask, available []string) string {
	fallback := s.Fallback(available)
	if s.classifier == nil {
		return fallback
	}

	logger := s.logger.With("source_id", task.ID, "classifier", s.classifier.Name())

	name, err := s.classifier.Classify(ctx, ClassifyRequest{
		Title:      task.Title,
		Notes:      task.Notes,
		Tags:       task.Tags,
		Candidates: available,
	})
	if err != nil {
		if !errors.Is(err, shared.ErrClassifier) {
			err = &shared.ClassifierError{Classifier: s.classifier.Name(), Err: err}
		}
		if errors.Is(err, ErrNoMatch) {
			logger.Debug("no classification, using fallback", "calendar", fallback)
		} else {
			logger.Warn("classification failed, using fallback", "calendar", fallback, "error", err)
		}
		return fallback
	}

	cal, ok := Resolve(name, available)
	if !ok {
		logger.Warn("classifier chose an unknown calendar, using fallback", "answer", name, "calendar", fallback)
		return fallback
	}
	return cal
}

func (s *Selector) cached(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.cache[id]
	return cal, ok
}

func (s *Selector) store(id, cal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = cal
}
