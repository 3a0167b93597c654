package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/t2r/internal/calendar"
	"github.com/desertthunder/t2r/internal/services"
	"github.com/desertthunder/t2r/internal/shared"
	"github.com/urfave/cli/v3"
)

// check is the outcome of one doctor check.
type check struct {
	Name   string
	Detail string
	Err    error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Doctor checks everything a sync run depends on and reports each result.
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	r.writePlainHeader("t2r doctor")

	results := []check{r.checkConfig()}

	if _, closeDB, err := r.openDatabase(); err != nil {
		results = append(results, check{Name: "record database", Err: err})
	} else {
		closeDB()
		results = append(results, check{Name: "record database", Detail: r.config.Database.Path})
	}

	if src, closeSrc, err := r.openSource(); err != nil {
		results = append(results, check{Name: "task source", Err: err})
	} else {
		defer closeSrc()
		results = append(results, r.checkSource(ctx, src))
	}

	if sink, err := r.openSink(ctx); err != nil {
		results = append(results, check{Name: "destination", Err: err})
	} else {
		results = append(results, r.checkDestination(ctx, sink))
	}

	results = append(results, r.checkClassifier())

	for _, c := range results {
		if c.Err != nil {
			r.writePlain("✗ %s: %v\n", c.Name, c.Err)
		} else {
			r.writePlain("✓ %s: %s\n", c.Name, c.Detail)
		}
	}

	if failed := failedChecks(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
	}
	r.writePlainln("Ready to sync.")
	return nil
}

// preflight runs the checks a sync needs against an already open source and sink.
func (r *Runner) preflight(ctx context.Context, src services.Source, sink services.Sink) []check {
	return []check{
		r.checkConfig(),
		r.checkSource(ctx, src),
		r.checkDestination(ctx, sink),
		r.checkClassifier(),
	}
}

func (r *Runner) checkConfig() check {
	c := check{Name: "config", Detail: "valid"}
	if r.configPath != "" {
		c.Detail = r.configPath
	}
	c.Err = r.config.Validate()
	return c
}

func (r *Runner) checkSource(ctx context.Context, src services.Source) check {
	c := check{Name: "task source", Detail: src.Name()}
	if p, ok := src.(pinger); ok {
		c.Err = p.Ping(ctx)
	}
	return c
}

// checkDestination confirms access (on macOS this triggers the Reminders permission prompt)
// and that at least one calendar exists.
func (r *Runner) checkDestination(ctx context.Context, sink services.Sink) check {
	c := check{Name: "destination"}

	calendars, err := sink.ListCalendars(ctx)
	if err != nil {
		c.Err = err
		return c
	}
	if len(calendars) == 0 {
		c.Err = fmt.Errorf("%w: %s has no calendars", shared.ErrDestinationUnavailable, sink.Name())
		return c
	}

	c.Detail = fmt.Sprintf("%s, %d calendars", sink.Name(), len(calendars))
	if def := r.config.Calendar.Default; def != "" {
		if _, ok := calendar.Resolve(def, calendars); !ok {
			c.Detail += fmt.Sprintf(" (default %q missing, alphabetically first calendar used instead)", def)
		}
	}
	return c
}

func (r *Runner) checkClassifier() check {
	cc := r.config.Classifier
	c := check{Name: "classifier", Detail: "disabled, using tag rules and the default calendar"}
	if !cc.Enabled {
		return c
	}

	path, err := r.lookPath(cc.Command)
	if err != nil {
		c.Err = &shared.ClassifierError{Classifier: cc.Command, Err: err}
		return c
	}
	c.Detail = path
	return c
}

func failedChecks(results []check) []check {
	var failed []check
	for _, c := range results {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}
