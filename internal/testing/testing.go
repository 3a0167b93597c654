// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/desertthunder/t2r/internal/models"
	"github.com/desertthunder/t2r/internal/shared"
)

// MockSource is a test double for [services.Source]
type MockSource struct {
	Tasks []models.SourceTask
	Err   error

	Calls      int
	LastFilter models.TaskFilter
}

func (m *MockSource) FetchTasks(ctx context.Context, filter models.TaskFilter) ([]models.SourceTask, error) {
	m.Calls++
	m.LastFilter = filter
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tasks, nil
}

func (m *MockSource) Name() string { return "mock-source" }

// SinkCall records one write made against a [MockSink].
type SinkCall struct {
	Op            string // "create" or "update"
	DestinationID string
	Reminder      models.MappedReminder
}

// MockSink is a test double for [services.Sink] that keeps reminders in memory.
//
// Failures are keyed by source ID; CreateErr and UpdateErr apply to every write.
type MockSink struct {
	Calendars []string
	ListErr   error
	CreateErr error
	UpdateErr error
	FailFor   map[string]error

	// OnWrite runs before each write is applied, after failures are checked.
	OnWrite func(call SinkCall)

	mu        sync.Mutex
	Calls     []SinkCall
	Reminders map[string]models.MappedReminder
	next      int
}

func (m *MockSink) Name() string { return "mock-sink" }

func (m *MockSink) ListCalendars(ctx context.Context) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Calendars, nil
}

func (m *MockSink) CreateReminder(ctx context.Context, r models.MappedReminder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(r.SourceID, m.CreateErr); err != nil {
		return "", err
	}

	m.next++
	id := fmt.Sprintf("rem-%d", m.next)
	call := SinkCall{Op: "create", DestinationID: id, Reminder: r}
	if m.OnWrite != nil {
		m.OnWrite(call)
	}
	m.Calls = append(m.Calls, call)
	if m.Reminders == nil {
		m.Reminders = make(map[string]models.MappedReminder)
	}
	m.Reminders[id] = r
	return id, nil
}

func (m *MockSink) UpdateReminder(ctx context.Context, destinationID string, r models.MappedReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(r.SourceID, m.UpdateErr); err != nil {
		return err
	}
	if _, ok := m.Reminders[destinationID]; !ok {
		return fmt.Errorf("reminder %s not found", destinationID)
	}

	call := SinkCall{Op: "update", DestinationID: destinationID, Reminder: r}
	if m.OnWrite != nil {
		m.OnWrite(call)
	}
	m.Calls = append(m.Calls, call)
	m.Reminders[destinationID] = r
	return nil
}

// Count returns how many writes of op were applied.
func (m *MockSink) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *MockSink) failure(sourceID string, all error) error {
	if err, ok := m.FailFor[sourceID]; ok {
		return err
	}
	return all
}

// MemoryStore is an in-memory record store with injectable failures.
type MemoryStore struct {
	GetErr    error
	UpsertErr error
	ListErr   error

	mu      sync.Mutex
	records map[string]models.SyncRecord
	Upserts int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.SyncRecord)}
}

func (m *MemoryStore) Get(sourceID string) (*models.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	rec, ok := m.records[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, sourceID)
	}
	return &rec, nil
}

func (m *MemoryStore) Upsert(record *models.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.records[record.SourceID] = *record
	m.Upserts++
	return nil
}

func (m *MemoryStore) SourceIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Records returns the stored records sorted by source ID.
func (m *MemoryStore) Records() []models.SyncRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SyncRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
