package tasks

import (
	"time"

	"github.com/desertthunder/t2r/internal/models"
)

// TaskResult is the outcome for one input task.
type TaskResult struct {
	SourceID      string `json:"source_id" yaml:"source_id"`
	Title         string `json:"title" yaml:"title"`
	State         State  `json:"state" yaml:"state"`
	Calendar      string `json:"calendar,omitempty" yaml:"calendar,omitempty"`
	DestinationID string `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SyncReport summarizes a run. It is returned even when the run aborts, describing
// everything done up to that point.
type SyncReport struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	Destination string       `json:"destination" yaml:"destination"`
	DryRun      bool         `json:"dry_run" yaml:"dry_run"`
	StartedAt   time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time    `json:"finished_at" yaml:"finished_at"`
	Total       int          `json:"total" yaml:"total"`
	Created     int          `json:"created" yaml:"created"`
	Updated     int          `json:"updated" yaml:"updated"`
	Skipped     int          `json:"skipped" yaml:"skipped"`
	Failed      int          `json:"failed" yaml:"failed"`
	Pending     int          `json:"pending" yaml:"pending"`
	Aborted     bool         `json:"aborted" yaml:"aborted"`
	AbortReason string       `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
	Results     []TaskResult `json:"results" yaml:"results"`
}

// Failures returns the results that ended in a failed state.
func (r *SyncReport) Failures() []TaskResult {
	var out []TaskResult
	for _, res := range r.Results {
		if res.State.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many results are in state s.
func (r *SyncReport) Count(s State) int {
	n := 0
	for _, res := range r.Results {
		if res.State == s {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run converts the report into the stored run history row.
func (r *SyncReport) Run() *models.SyncRun {
	finished := r.FinishedAt
	return &models.SyncRun{
		ID:          r.RunID,
		Destination: r.Destination,
		DryRun:      r.DryRun,
		Total:       r.Total,
		Created:     r.Created,
		Updated:     r.Updated,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Aborted:     r.Aborted,
		AbortReason: r.AbortReason,
		StartedAt:   r.StartedAt,
		FinishedAt:  &finished,
	}
}

// tally recomputes the counters from Results.
func (r *SyncReport) tally() {
	r.Total = len(r.Results)
	r.Created, r.Updated, r.Skipped, r.Failed, r.Pending = 0, 0, 0, 0, 0
	for _, res := range r.Results {
		switch {
		case res.State == StateCreated:
			r.Created++
		case res.State == StateUpdated:
			r.Updated++
		case res.State == StateSkipped:
			r.Skipped++
		case res.State.Failed():
			r.Failed++
		case res.State.Pending():
			r.Pending++
		}
	}
}
