package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/t2r/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	SyncView
	ResultView
)

// RunFunc performs one sync run, reporting progress on the channel.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncReport, error)

// ModelOpts configures a [Model].
type ModelOpts struct {
	Destination string
	DryRun      bool
	Confirm     bool // Ask before starting; otherwise the run starts immediately
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	run          RunFunc
	opts         ModelOpts
	width        int
	height       int
	spinner      spinner.Model
	bar          progress.Model
	percent      float64
	progressChan chan tasks.ProgressUpdate
	done         chan struct{}
	progress     tasks.ProgressUpdate
	report       *tasks.SyncReport
	err          error
	results      list.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model that syncs with run.
func NewModel(ctx context.Context, run RunFunc, opts ModelOpts) *Model {
	view := SyncView
	if opts.Confirm {
		view = ConfirmView
	}
	return &Model{
		ctx:     ctx,
		view:    view,
		run:     run,
		opts:    opts,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Report returns the last run's report, if any.
func (m *Model) Report() *tasks.SyncReport { return m.report }

// Err returns the last run's error, if any.
func (m *Model) Err() error { return m.err }

// Wait blocks until the current run returns. Call it after the program exits so a run
// cancelled mid-write finishes recording before [Model.Report] is read.
func (m *Model) Wait() {
	if m.done != nil {
		<-m.done
	}
}

// Init starts the run unless confirmation is required.
func (m *Model) Init() tea.Cmd {
	if m.view == ConfirmView {
		return nil
	}
	return m.startSync()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-8, 10)
		if m.view == ResultView {
			m.results.SetSize(msg.Width-4, msg.Height-12)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.applyProgress(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgSyncComplete:
			res := msg.data.(syncResult)
			m.finish(res.report, res.err)
			return m, nil
		}
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		return m, tea.Quit
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = SyncView
		return m, m.startSync()
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) applyProgress(update tasks.ProgressUpdate) {
	m.progress = update
	switch update.Phase {
	case tasks.WriteBatch:
		if _, ok := update.Data.(tasks.TaskResult); ok && update.Total > 0 {
			m.percent = float64(update.Step) / float64(update.Total)
		}
	case tasks.Complete:
		m.percent = 1
	}
}

func (m *Model) finish(report *tasks.SyncReport, err error) {
	m.report = report
	m.err = err
	m.view = ResultView

	var shown []tasks.TaskResult
	if report != nil {
		for _, res := range report.Results {
			if res.State.Failed() || res.State.Pending() {
				shown = append(shown, res)
			}
		}
	}

	m.results = list.New(resultItems(shown), list.NewDefaultDelegate(), 0, 0)
	m.results.Title = "Failed and pending tasks"
	m.results.SetShowHelp(false)
	m.results.SetSize(max(m.width-4, 20), max(m.height-12, 5))
}

func (m *Model) startSync() tea.Cmd {
	m.percent = 0
	m.progress = tasks.ProgressUpdate{}
	m.report = nil
	m.err = nil

	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	m.progressChan = ch
	m.done = done

	go func() {
		defer close(done)
		report, err := m.run(m.ctx, ch)
		m.report = report
		m.err = err
		close(ch)
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	return func() tea.Msg {
		if ch == nil {
			return syncCompleteMsg(m.report, m.err)
		}

		update, ok := <-ch
		if !ok {
			return syncCompleteMsg(m.report, m.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) heading() string {
	title := fmt.Sprintf("Things → %s", m.opts.Destination)
	if m.opts.DryRun {
		title += " (dry run)"
	}
	return styles.title.Render(title)
}

func (m *Model) renderConfirm() string {
	info := "Tasks will be written to the destination."
	if m.opts.DryRun {
		info = "Nothing will be written; the run only plans."
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.heading(), info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSync() string {
	phase := m.progress.Phase.String()
	if m.progress.Message == "" {
		phase = "starting"
	}

	var b strings.Builder
	b.WriteString(m.heading())
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), styles.help.Render(phase))
	b.WriteString(m.bar.ViewAs(m.percent))
	b.WriteString("\n\n")
	b.WriteString(m.progress.Message)
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	var b strings.Builder

	switch {
	case m.report == nil && m.err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)))
	case m.report == nil:
		b.WriteString(styles.err.Render("No result available"))
	default:
		r := m.report
		if r.Aborted {
			b.WriteString(styles.err.Render("✗ Sync aborted: " + r.AbortReason))
		} else if r.Failed > 0 {
			b.WriteString(styles.warn.Render("! Sync finished with failures"))
		} else {
			b.WriteString(styles.ok.Render("✓ Sync complete"))
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s  %s  %s  %s  %s",
			styles.State(tasks.StateCreated).Render(fmt.Sprintf("created %d", r.Created)),
			styles.State(tasks.StateUpdated).Render(fmt.Sprintf("updated %d", r.Updated)),
			styles.State(tasks.StateSkipped).Render(fmt.Sprintf("skipped %d", r.Skipped)),
			styles.State(tasks.StateCreateFailed).Render(fmt.Sprintf("failed %d", r.Failed)),
			styles.State(tasks.StateCreatePending).Render(fmt.Sprintf("pending %d", r.Pending)),
		)
		if len(m.results.Items()) > 0 {
			b.WriteString("\n\n")
			b.WriteString(m.results.View())
		}
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}))
	return b.String()
}
