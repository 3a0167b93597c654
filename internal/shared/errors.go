package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Sync errors
	ErrSourceUnavailable      = fmt.Errorf("task source unavailable")
	ErrDestinationUnavailable = fmt.Errorf("reminders destination unavailable")
	ErrSinkWrite              = fmt.Errorf("reminder write failed")
	ErrClassifier             = fmt.Errorf("calendar classification failed")
	ErrPersistence            = fmt.Errorf("sync record persistence failed")
	ErrRunAborted             = fmt.Errorf("sync run aborted")
	ErrRecordNotFound         = fmt.Errorf("sync record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// SinkWriteError reports a failed create or update for a single source task.
type SinkWriteError struct {
	SourceID string
	Err      error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("%v: task %s: %v", ErrSinkWrite, e.SourceID, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Is reports true for [ErrSinkWrite] so callers can match on the sentinel.
func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }

// ClassifierError wraps any failure of a classifier to produce a usable answer.
type ClassifierError struct {
	Classifier string
	Err        error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrClassifier, e.Classifier, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

func (e *ClassifierError) Is(target error) bool { return target == ErrClassifier }
