package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/t2r/internal/tasks"
	"github.com/desertthunder/t2r/internal/ui"
)

// runTUI shows run in the terminal UI and returns its report once the program exits.
//
// Quitting mid-run cancels the engine and waits for it, so a reminder already written is recorded.
func (r *Runner) runTUI(ctx context.Context, run ui.RunFunc, opts ui.ModelOpts) (*tasks.SyncReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, run, opts)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	_, err := p.Run()
	cancel()
	model.Wait()

	if err != nil && model.Report() == nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}
	if model.Report() == nil && model.Err() == nil {
		r.logger.Info("sync cancelled before start")
	}
	return model.Report(), model.Err()
}
