package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"  WARN ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"chatty", log.InfoLevel},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name    string
		period  string
		want    time.Time
		wantErr bool
	}{
		{name: "days", period: "7d", want: time.Date(2024, 6, 23, 12, 0, 0, 0, time.UTC)},
		{name: "weeks", period: "2w", want: time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC)},
		{name: "months", period: "1m", want: time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)},
		{name: "years upper case", period: "1Y", want: time.Date(2023, 6, 30, 12, 0, 0, 0, time.UTC)},
		{name: "missing count", period: "d", wantErr: true},
		{name: "zero", period: "0d", wantErr: true},
		{name: "unknown unit", period: "3h", wantErr: true},
		{name: "garbage", period: "soon", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.period, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.period)
				}
				if !errors.Is(err, ErrInvalidFlag) {
					t.Errorf("expected ErrInvalidFlag, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParsePeriod(%q) = %v, want %v", tt.period, got, tt.want)
			}
		})
	}
}

func TestTypedErrors(t *testing.T) {
	t.Run("SinkWriteError matches sentinel and cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := error(&SinkWriteError{SourceID: "abc", Err: cause})

		if !errors.Is(err, ErrSinkWrite) {
			t.Error("expected errors.Is(err, ErrSinkWrite)")
		}
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable")
		}

		var swe *SinkWriteError
		if !errors.As(err, &swe) || swe.SourceID != "abc" {
			t.Errorf("expected SinkWriteError for abc, got %v", swe)
		}
	})

	t.Run("SinkWriteError carries destination loss", func(t *testing.T) {
		err := error(&SinkWriteError{SourceID: "abc", Err: ErrDestinationUnavailable})
		if !errors.Is(err, ErrDestinationUnavailable) {
			t.Error("expected destination loss to be detectable through SinkWriteError")
		}
	})

	t.Run("ClassifierError", func(t *testing.T) {
		err := error(&ClassifierError{Classifier: "llm", Err: ErrTimeout})
		if !errors.Is(err, ErrClassifier) {
			t.Error("expected errors.Is(err, ErrClassifier)")
		}
		if !errors.Is(err, ErrTimeout) {
			t.Error("expected wrapped timeout")
		}
	})
}

func TestRequireDarwin(t *testing.T) {
	original := getRuntime
	defer func() { getRuntime = original }()

	getRuntime = func() string { return "darwin" }
	if err := RequireDarwin("reminders"); err != nil {
		t.Errorf("expected nil on darwin, got %v", err)
	}

	getRuntime = func() string { return "linux" }
	if err := RequireDarwin("reminders"); !errors.Is(err, ErrDestinationUnavailable) {
		t.Errorf("expected ErrDestinationUnavailable on linux, got %v", err)
	}
}

func TestOpenBrowserUnsupported(t *testing.T) {
	original := getRuntime
	defer func() { getRuntime = original }()

	getRuntime = func() string { return "plan9" }
	if err := OpenBrowser("http://localhost"); err == nil {
		t.Error("expected unsupported platform error")
	}
}
