package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/docgate/docgate/internal/core"
)

// TableFormatter renders outcomes as a terminal table.
type TableFormatter struct{}

func (f *TableFormatter) FormatOutcomes(outcomes []core.Outcome) (string, error) {
	if len(outcomes) == 0 {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Source", "Doc ID", "Status", "HTTP", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})

	for _, outcome := range outcomes {
		t.AppendRow(table.Row{
			outcome.Source,
			outcome.DocID,
			string(outcome.Status),
			statusCode(outcome),
			detail(outcome),
		})
	}

	t.AppendFooter(table.Row{"", "", Summarize(outcomes).String(), "", ""})
	return t.Render(), nil
}
