package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/calendar"
	"github.com/desertthunder/t2r/internal/services"
	"github.com/desertthunder/t2r/internal/shared"
	"github.com/desertthunder/t2r/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, source and sink are opened on demand unless injected through [RunnerOpts].
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	source     services.Source
	sink       services.Sink
	lookPath   func(file string) (string, error)
	openURL    func(url string) error
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB         // Already migrated; the runner never closes it
	Source     services.Source // Replaces the Things database
	Sink       services.Sink   // Replaces the configured destination
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		source:     opts.Source,
		sink:       opts.Sink,
		lookPath:   exec.LookPath,
		openURL:    shared.OpenBrowser,
		now:        time.Now,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Configure loads the config file named by --config, when present, and sets the log level.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, doctorCommand, calendarsCommand, historyCommand, recordsCommand, setupCommand, authCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDatabase returns the record database, opening and migrating it when none was injected.
func (r *Runner) openDatabase() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}

	path := shared.ExpandPath(r.config.Database.Path)
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
		}
	}
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}

	r.logger.Debug("opened record database", "path", path)
	return db, func() { db.Close() }, nil
}

// openSource returns the Things source, discovering its database unless configured.
func (r *Runner) openSource() (services.Source, func(), error) {
	if r.source != nil {
		return r.source, func() {}, nil
	}

	path := r.config.Source.DatabasePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		if path, err = services.DiscoverThingsDatabase(home); err != nil {
			return nil, nil, err
		}
	}

	src, err := services.NewThingsSource(path, services.ThingsOpts{Logger: r.logger})
	if err != nil {
		return nil, nil, err
	}
	return src, func() { src.Close() }, nil
}

// openSink returns the configured destination.
func (r *Runner) openSink(ctx context.Context) (services.Sink, error) {
	if r.sink != nil {
		return r.sink, nil
	}

	dest := r.config.Destination
	switch dest.Kind {
	case shared.DestinationReminders:
		return services.NewRemindersSink(services.RemindersOpts{
			Timeout: dest.Timeout,
			Logger:  shared.WithLogger(r.logger, "sink", dest.Kind),
		}), nil
	case shared.DestinationGoogleTasks:
		opts, err := services.GoogleClientOptions(ctx, dest.Google.CredentialsPath, dest.Google.TokenPath)
		if err != nil {
			return nil, err
		}
		sink, err := services.NewGoogleTasksSink(ctx, shared.WithLogger(r.logger, "sink", dest.Kind), opts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("%w: unknown destination kind %q", shared.ErrInvalidConfig, dest.Kind)
	}
}

// newSelector builds the calendar selector: tag rules first, then the classifier command when enabled.
func (r *Runner) newSelector() *calendar.Selector {
	var chain calendar.Chain
	if len(r.config.Calendar.Rules) > 0 {
		chain = append(chain, calendar.NewRuleClassifier(r.config.Calendar.Rules))
	}

	cc := r.config.Classifier
	if cc.Enabled {
		chain = append(chain, calendar.NewCommandClassifier(cc.Command, cc.Args, cc.Timeout))
	}

	opts := calendar.SelectorOpts{
		Default:           r.config.Calendar.Default,
		Logger:            shared.WithLogger(r.logger, "component", "selector"),
		Workers:           cc.Workers,
		RequestsPerSecond: cc.RequestsPerSecond,
	}
	if len(chain) > 0 {
		opts.Classifier = chain
	}
	return calendar.NewSelector(opts)
}

func (r *Runner) newEngine(sink services.Sink, store tasks.RecordStore, dryRun bool) *tasks.Engine {
	return tasks.NewEngine(tasks.EngineOpts{
		Sink:                   sink,
		Store:                  store,
		Selector:               r.newSelector(),
		Logger:                 shared.WithLogger(r.logger, "component", "engine"),
		BatchSize:              r.config.Sync.BatchSize,
		MaxConsecutiveFailures: r.config.Sync.MaxConsecutiveFailures,
		WritesPerSecond:        r.config.Destination.WritesPerSecond,
		DryRun:                 dryRun,
		Now:                    r.now,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// isNotFound reports whether err is a missing-record error.
func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrRecordNotFound)
}
