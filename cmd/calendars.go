package main

import (
	"context"

	"github.com/desertthunder/t2r/internal/calendar"
	"github.com/urfave/cli/v3"
)

// Calendars lists the destination's calendars and marks the configured default.
func (r *Runner) Calendars(ctx context.Context, cmd *cli.Command) error {
	sink, err := r.openSink(ctx)
	if err != nil {
		return err
	}

	calendars, err := sink.ListCalendars(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(calendars, false)
	}

	if len(calendars) == 0 {
		return r.writePlain("%s has no calendars.\n", sink.Name())
	}

	def, _ := calendar.Resolve(r.config.Calendar.Default, calendars)
	for _, name := range calendars {
		if name == def {
			r.writePlain("• %s (default)\n", name)
		} else {
			r.writePlain("• %s\n", name)
		}
	}
	return nil
}
