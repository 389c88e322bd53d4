// Package output renders submission outcomes for the CLI.
package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docgate/docgate/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders a set of submission outcomes.
type Formatter interface {
	FormatOutcomes(outcomes []core.Outcome) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Summary tallies outcomes by status.
type Summary struct {
	Total    int                        `json:"total"`
	Accepted int                        `json:"accepted"`
	ByStatus map[core.OutcomeStatus]int `json:"by_status"`
}

// Summarize counts outcomes.
func Summarize(outcomes []core.Outcome) Summary {
	summary := Summary{ByStatus: make(map[core.OutcomeStatus]int)}
	for _, outcome := range outcomes {
		summary.Total++
		summary.ByStatus[outcome.Status]++
		if outcome.Succeeded() {
			summary.Accepted++
		}
	}
	return summary
}

// String renders "2/3 accepted, 1 rejected".
func (s Summary) String() string {
	parts := []string{fmt.Sprintf("%d/%d accepted", s.Accepted, s.Total)}

	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		if status != core.OutcomeAccepted {
			statuses = append(statuses, string(status))
		}
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByStatus[core.OutcomeStatus(status)], status))
	}
	return strings.Join(parts, ", ")
}

func detail(outcome core.Outcome) string {
	if outcome.Succeeded() && outcome.Receipt != nil {
		text := fmt.Sprintf("id %s", outcome.Receipt.SubmissionID)
		if waited := outcome.Receipt.Waited(); waited > 0 {
			text += fmt.Sprintf(", waited %s", waited.Round(time.Millisecond))
		}
		return text
	}
	return outcome.Message
}

func statusCode(outcome core.Outcome) string {
	if outcome.StatusCode == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", outcome.StatusCode)
}
