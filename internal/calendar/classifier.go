package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/t2r/internal/shared"
)

// ErrNoMatch is returned by classifiers that have no opinion about a task.
// The selector treats it as an ordinary fallback rather than a warning.
var ErrNoMatch = errors.New("no classification rule matched")

// ClassifyRequest is what a classifier sees of a task.
type ClassifyRequest struct {
	Title      string
	Notes      string
	Tags       []string
	Candidates []string
}

// Classifier suggests a calendar name for a task. Failures must be [*shared.ClassifierError].
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (string, error)
	Name() string
}

// RuleClassifier routes tasks by tag. Rules map a calendar name to the tags that select it.
type RuleClassifier struct {
	byTag map[string]string
}

// NewRuleClassifier builds a tag index from rules. When two calendars claim the same tag
// the alphabetically first calendar wins.
func NewRuleClassifier(rules map[string][]string) *RuleClassifier {
	calendars := make([]string, 0, len(rules))
	for cal := range rules {
		calendars = append(calendars, cal)
	}
	sort.Strings(calendars)

	byTag := make(map[string]string)
	for _, cal := range calendars {
		for _, tag := range rules[cal] {
			key := strings.ToLower(strings.TrimSpace(tag))
			if _, taken := byTag[key]; key != "" && !taken {
				byTag[key] = cal
			}
		}
	}
	return &RuleClassifier{byTag: byTag}
}

func (c *RuleClassifier) Name() string { return "rules" }

// Classify returns the calendar of the first task tag that has a rule.
func (c *RuleClassifier) Classify(_ context.Context, req ClassifyRequest) (string, error) {
	for _, tag := range req.Tags {
		if cal, ok := c.byTag[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return cal, nil
		}
	}
	return "", &shared.ClassifierError{Classifier: c.Name(), Err: ErrNoMatch}
}

// CommandClassifier asks an external command, by default the `llm` CLI, for a calendar.
//
// The command is invoked as: command [args...] -s <system prompt> <task prompt>
// and must print the calendar name.
type CommandClassifier struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandClassifier creates a [CommandClassifier].
func NewCommandClassifier(command string, args []string, timeout time.Duration) *CommandClassifier {
	return &CommandClassifier{Command: command, Args: args, Timeout: timeout}
}

func (c *CommandClassifier) Name() string { return c.Command }

// Classify runs the command once for req.
func (c *CommandClassifier) Classify(ctx context.Context, req ClassifyRequest) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Args...), "-s", SystemPrompt(req.Candidates), TaskPrompt(req))
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", &shared.ClassifierError{Classifier: c.Name(), Err: fmt.Errorf("%w after %v", shared.ErrTimeout, c.Timeout)}
		}
		return "", &shared.ClassifierError{Classifier: c.Name(), Err: ctxErr}
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &shared.ClassifierError{Classifier: c.Name(), Err: err}
	}

	name := ParseAnswer(string(out))
	if name == "" {
		return "", &shared.ClassifierError{Classifier: c.Name(), Err: fmt.Errorf("empty or unparseable output %q", strings.TrimSpace(string(out)))}
	}
	return name, nil
}

// SystemPrompt lists the candidate calendars and the answer format.
func SystemPrompt(candidates []string) string {
	return "You sort todo items into reminder lists. Reply with ONLY the name of the single list " +
		"that best fits the todo, exactly as written below, and nothing else.\n\nAvailable lists: " +
		strings.Join(candidates, ", ")
}

// TaskPrompt describes one task for the classifier.
func TaskPrompt(req ClassifyRequest) string {
	var b strings.Builder
	b.WriteString("Todo: ")
	b.WriteString(req.Title)
	if len(req.Tags) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(req.Tags, ", "))
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		b.WriteString("\nNotes: ")
		b.WriteString(notes)
	}
	return b.String()
}

// ParseAnswer extracts a calendar name from free-form classifier output: the first
// non-empty line, without list markers, "N:" prefixes, quotes or a trailing period.
func ParseAnswer(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")

		if head, tail, ok := strings.Cut(line, ":"); ok && isDigits(strings.TrimSpace(head)) {
			line = tail
		}

		line = strings.TrimSuffix(strings.TrimSpace(line), ".")
		line = strings.Trim(line, "\"'`")
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Chain tries each classifier in order and returns the first answer.
type Chain []Classifier

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, cl := range c {
		names[i] = cl.Name()
	}
	return strings.Join(names, "+")
}

// Classify returns the first successful answer. When all fail, the most informative
// error is returned: a real failure is preferred over [ErrNoMatch].
func (c Chain) Classify(ctx context.Context, req ClassifyRequest) (string, error) {
	var last error = &shared.ClassifierError{Classifier: c.Name(), Err: ErrNoMatch}
	for _, cl := range c {
		name, err := cl.Classify(ctx, req)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, ErrNoMatch) || errors.Is(last, ErrNoMatch) {
			last = err
		}
	}
	return "", last
}
