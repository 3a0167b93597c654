package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/t2r/internal/tasks"
)

var _ list.Item = resultItem{}

// resultItem wraps [tasks.TaskResult] to implement [list.Item].
type resultItem struct {
	result tasks.TaskResult
}

func (i resultItem) FilterValue() string { return i.result.Title }
func (i resultItem) Title() string       { return i.result.Title }
func (i resultItem) Description() string {
	desc := string(i.result.State)
	if i.result.Error != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.result.Error)
	}
	return desc
}

func resultItems(results []tasks.TaskResult) []list.Item {
	items := make([]list.Item, len(results))
	for i, res := range results {
		items[i] = resultItem{result: res}
	}
	return items
}
