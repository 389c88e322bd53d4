package output

import (
	"encoding/json"

	"github.com/docgate/docgate/internal/core"
)

// JSONFormatter renders outcomes with a summary as JSON.
type JSONFormatter struct {
	Indent bool
}

type jsonReport struct {
	Summary  Summary        `json:"summary"`
	Outcomes []core.Outcome `json:"outcomes"`
}

func (f *JSONFormatter) FormatOutcomes(outcomes []core.Outcome) (string, error) {
	if outcomes == nil {
		outcomes = []core.Outcome{}
	}
	report := jsonReport{Summary: Summarize(outcomes), Outcomes: outcomes}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
