// package formatter renders sync reports in various formats (JSON, YAML, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/t2r/internal/shared"
	"github.com/desertthunder/t2r/internal/tasks"
	"gopkg.in/yaml.v3"
)

// Format is a report output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatYAML, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidFlag, s)
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Export renders report in format f.
func Export(report *tasks.SyncReport, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ExportToJSON(report)
	case FormatYAML:
		return ExportToYAML(report)
	case FormatCSV:
		return ExportToCSV(report)
	case FormatMarkdown:
		return ExportToMarkdown(report)
	case FormatText:
		return ExportToText(report)
	}
	return nil, fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidFlag, f)
}

// ExportToJSON renders the full report as indented JSON.
func ExportToJSON(report *tasks.SyncReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToYAML renders the full report as YAML.
func ExportToYAML(report *tasks.SyncReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToCSV writes one row per task with columns: Source ID, Title, State, Calendar, Destination ID, Error
func ExportToCSV(report *tasks.SyncReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Source ID", "Title", "State", "Calendar", "Destination ID", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, res := range report.Results {
		record := []string{
			res.SourceID,
			res.Title,
			string(res.State),
			res.Calendar,
			res.DestinationID,
			res.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary table followed by failures and the task list.
func ExportToMarkdown(report *tasks.SyncReport) ([]byte, error) {
	var buf bytes.Buffer

	title := "Sync report"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Run**: %s\n", report.RunID)
	fmt.Fprintf(&buf, "**Destination**: %s\n", report.Destination)
	fmt.Fprintf(&buf, "**Started**: %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Duration**: %s\n\n", report.Duration().Round(time.Millisecond))

	if report.Aborted {
		fmt.Fprintf(&buf, "> **Aborted**: %s\n\n", report.AbortReason)
	}

	buf.WriteString("| Total | Created | Updated | Skipped | Failed | Pending |\n")
	buf.WriteString("|------:|--------:|--------:|--------:|-------:|--------:|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d | %d |\n\n",
		report.Total, report.Created, report.Updated, report.Skipped, report.Failed, report.Pending)

	if failures := report.Failures(); len(failures) > 0 {
		buf.WriteString("## Failures\n\n")
		for _, res := range failures {
			fmt.Fprintf(&buf, "- **%s** (`%s`): %s\n", escapeMarkdown(res.Title), res.SourceID, res.Error)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Tasks\n\n")
	for i, res := range report.Results {
		calendar := ""
		if res.Calendar != "" {
			calendar = fmt.Sprintf(" → %s", res.Calendar)
		}
		fmt.Fprintf(&buf, "%d. %s [%s]%s\n", i+1, escapeMarkdown(res.Title), res.State, calendar)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a report to plain text format
func ExportToText(report *tasks.SyncReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Run: %s\n", report.RunID)
	fmt.Fprintf(&buf, "Destination: %s\n", report.Destination)
	if report.DryRun {
		buf.WriteString("Dry run: nothing was written\n")
	}
	fmt.Fprintf(&buf, "Created: %d  Updated: %d  Skipped: %d  Failed: %d  Pending: %d\n",
		report.Created, report.Updated, report.Skipped, report.Failed, report.Pending)
	if report.Aborted {
		fmt.Fprintf(&buf, "Aborted: %s\n", report.AbortReason)
	}
	buf.WriteString("\n")

	for i, res := range report.Results {
		fmt.Fprintf(&buf, "%d. [%s] %s", i+1, res.State, res.Title)
		if res.Calendar != "" {
			fmt.Fprintf(&buf, " (%s)", res.Calendar)
		}
		if res.Error != "" {
			fmt.Fprintf(&buf, ": %s", res.Error)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// WriteReport writes report to path in format f and returns the path written.
//
// Defaults to t2r-report-{run id}.{ext} in the working directory.
func WriteReport(report *tasks.SyncReport, path string, f Format) (string, error) {
	if path == "" {
		path = fmt.Sprintf("t2r-report-%s.%s", report.RunID, f.Extension())
	}

	data, err := Export(report, f)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
