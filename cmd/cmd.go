// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/t2r/internal/formatter"
	"github.com/urfave/cli/v3"
)

func formatNames() string {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// syncCommand runs the export engine
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Export Things to-dos into the configured destination",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Create and update reminders for Things to-dos",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Plan the run without writing reminders or sync records",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show progress in an interactive terminal UI",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Start the TUI run without asking",
					},
					&cli.BoolFlag{
						Name:  "skip-checks",
						Usage: "Skip the doctor checks before running",
					},
					&cli.StringFlag{
						Name:    "report",
						Aliases: []string{"o"},
						Usage:   "Write the run report to this file",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: fmt.Sprintf("Report format (%s); defaults to the --report extension", formatNames()),
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include completed, canceled and trashed to-dos",
					},
					&cli.BoolFlag{
						Name:  "include-completed",
						Usage: "Include completed to-dos",
					},
					&cli.BoolFlag{
						Name:  "include-canceled",
						Usage: "Include canceled to-dos",
					},
					&cli.StringFlag{
						Name:  "completed-last",
						Usage: "Include to-dos completed within a period such as 7d, 2w or 1m",
					},
					&cli.BoolFlag{
						Name:  "only-deadlines",
						Usage: "Only to-dos with a deadline",
					},
					&cli.StringSliceFlag{
						Name:  "view",
						Usage: "Limit to Things lists: inbox, today, upcoming, anytime, someday",
					},
					&cli.StringFlag{
						Name:  "tag",
						Usage: "Only to-dos with this tag",
					},
				},
				Action: r.SyncRun,
			},
		},
	}
}

// doctorCommand checks the environment a run needs
func doctorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Check the Things database, destination, classifier and config",
		Action: r.Doctor,
	}
}

// calendarsCommand lists destination lists
func calendarsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "calendars",
		Aliases: []string{"lists"},
		Usage:   "List the calendars available in the destination",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Calendars,
	}
}

// historyCommand shows past runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "prune",
				Usage: "Remove runs older than a period such as 30d or 6m",
			},
		},
		Action: r.History,
	}
}

// recordsCommand manages the source → destination correlation table
func recordsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Inspect and maintain sync records",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List every synced to-do",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.RecordsList,
			},
			{
				Name:  "forget",
				Usage: "Drop the record for a to-do so the next run creates a new reminder",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "source-id",
					},
				},
				Action: r.RecordsForget,
			},
			{
				Name:  "reset",
				Usage: "Drop every sync record",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm removing all records",
					},
				},
				Action: r.RecordsReset,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the record database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles destination authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize destinations",
		Commands: []*cli.Command{
			{
				Name:  "google",
				Usage: "Authorize Google Tasks with OAuth2",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the consent URL instead of opening a browser",
					},
				},
				Action: r.AuthGoogle,
			},
		},
	}
}
