package output

import (
	"fmt"
	"strings"

	"github.com/docgate/docgate/internal/core"
)

// MarkdownFormatter renders outcomes as a markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatOutcomes(outcomes []core.Outcome) (string, error) {
	if len(outcomes) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Submissions\n\n")
	sb.WriteString("| Source | Doc ID | Status | HTTP | Detail |\n")
	sb.WriteString("|--------|--------|--------|------|--------|\n")

	for _, outcome := range outcomes {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(outcome.Source),
			escapeMarkdownCell(outcome.DocID),
			escapeMarkdownCell(string(outcome.Status)),
			statusCode(outcome),
			escapeMarkdownCell(detail(outcome)),
		)
	}

	fmt.Fprintf(&sb, "\n**Result**: %s\n", Summarize(outcomes).String())
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
