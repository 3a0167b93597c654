// package mapper turns source tasks into reminders
package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/t2r/internal/models"
)

const (
	// EarlyReminderOffset is how long before the due date a flagged reminder alerts.
	EarlyReminderOffset = 24 * time.Hour

	// BreadcrumbSeparator joins the project path in the notes.
	BreadcrumbSeparator = " > "

	UntitledTask = "Untitled Task"

	checkedMark   = "✓"
	uncheckedMark = "☐"
)

// Map renders a [models.SourceTask] as a [models.MappedReminder].
//
// Map is pure: the same task always yields the same reminder. Calendar is left empty for
// the calendar selector to fill in.
func Map(task models.SourceTask) models.MappedReminder {
	title := strings.TrimSpace(task.Title)
	if title == "" {
		title = UntitledTask
	}

	r := models.MappedReminder{
		SourceID:    task.ID,
		Title:       title,
		Notes:       ComposeNotes(task),
		Due:         copyTime(task.Due),
		Completed:   !task.Status.Active(),
		CompletedAt: copyTime(task.CompletedAt),
	}

	if ShouldFlag(task) {
		offset := EarlyReminderOffset
		r.Flagged = true
		r.EarlyReminder = &offset
	}

	return r
}

// ShouldFlag reports whether a task gets the flag and early alert: it must sit in the
// anytime list and carry a due date.
func ShouldFlag(task models.SourceTask) bool {
	return task.List == models.ViewAnytime && task.Due != nil
}

// ComposeNotes builds the reminder body. Sections appear in a fixed order, separated by
// a blank line, and empty sections are left out:
//
//  1. project breadcrumb ("Home > Bills")
//  2. hashtag line ("#Home #Finance")
//  3. checklist
//  4. the task's own notes
//  5. a status line for tasks that are no longer open
//  6. the source reference
func ComposeNotes(task models.SourceTask) string {
	var sections []string

	if crumb := Breadcrumb(task.Path); crumb != "" {
		sections = append(sections, crumb)
	}
	if tags := HashtagLine(task.Tags); tags != "" {
		sections = append(sections, tags)
	}
	if checklist := ChecklistBlock(task.Checklist); checklist != "" {
		sections = append(sections, checklist)
	}
	if notes := strings.TrimSpace(task.Notes); notes != "" {
		sections = append(sections, notes)
	}
	if status := StatusLine(task.Status); status != "" {
		sections = append(sections, status)
	}
	if task.ID != "" {
		sections = append(sections, "Imported from Things ("+task.ID+")")
	}

	return strings.Join(sections, "\n\n")
}

// StatusLine records how a task left the open state. The reminder itself only knows
// completed or not, so this is where canceled and trashed stay distinguishable.
func StatusLine(status models.TaskStatus) string {
	switch status {
	case models.StatusCompleted:
		return "Status: ✓ Completed"
	case models.StatusCanceled:
		return "Status: ✗ Canceled"
	case models.StatusTrashed:
		return "Status: ✗ Trashed"
	}
	return ""
}

// Breadcrumb joins the non-empty path segments with [BreadcrumbSeparator].
func Breadcrumb(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, BreadcrumbSeparator)
}

// HashtagLine renders tags as space separated hashtags in their original order.
// Whitespace inside a tag becomes a hyphen and duplicates are dropped.
func HashtagLine(tags []string) string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.Join(strings.Fields(strings.TrimPrefix(strings.TrimSpace(tag), "#")), "-")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, "#"+name)
	}
	return strings.Join(out, " ")
}

// ChecklistBlock renders checklist items under a "Checklist:" header.
func ChecklistBlock(items []models.ChecklistItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Checklist:")
	for _, item := range items {
		mark := uncheckedMark
		if item.Completed {
			mark = checkedMark
		}
		b.WriteString("\n")
		b.WriteString(mark)
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(item.Text))
	}
	return b.String()
}

// Fingerprint hashes every field that changes how a reminder renders. Two reminders with
// equal fingerprints need no update. The calendar is excluded so that a reminder is never
// rewritten just because the classifier answered differently.
func Fingerprint(r models.MappedReminder) string {
	due := ""
	if r.Due != nil {
		due = r.Due.Format(time.RFC3339)
	}
	early := ""
	if r.EarlyReminder != nil {
		early = r.EarlyReminder.String()
	}
	completedAt := ""
	if r.CompletedAt != nil {
		completedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}

	fields := []string{
		r.Title,
		r.Notes,
		due,
		strconv.FormatBool(r.Flagged),
		early,
		strconv.FormatBool(r.Completed),
		completedAt,
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
