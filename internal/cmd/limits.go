package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/output"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the submission rate limit",
	Long: `Show the configured submission rate limit. With --relay, query the live
limiter of a running "serve" process instead (GET /v1/limiter).`,
	RunE: runLimits,
}

func init() {
	rootCmd.AddCommand(limitsCmd)

	limitsCmd.Flags().String("output", string(output.FormatTable), "Output format: table, json")
	limitsCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	limitsCmd.Flags().String("relay", "", "Base URL of a running relay, e.g. http://localhost:8080")
}

func runLimits(cmd *cobra.Command, args []string) error {
	format, err := limitsFormat(cmd)
	if err != nil {
		return err
	}

	relayURL, _ := cmd.Flags().GetString("relay")
	relayURL = strings.TrimSpace(relayURL)
	var snapshot ratelimit.Stats
	if relayURL != "" {
		snapshot, err = fetchLimiterStats(commandContext(cmd), relayURL)
	} else {
		snapshot, err = configuredLimits(cmd)
	}
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	sink, err := openSink(cmd, outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, string(payload))
		return err
	}

	_, err = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(limitLines(snapshot, relayURL != ""), "\n"), 0))
	return err
}

func limitsFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	format, err := output.ParseFormat(value)
	if err != nil {
		return "", err
	}
	if format != output.FormatJSON && format != output.FormatTable {
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
	return format, nil
}

// configuredLimits builds the limiter the configuration describes and
// reports its initial state.
func configuredLimits(cmd *cobra.Command) (ratelimit.Stats, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return ratelimit.Stats{}, err
	}
	limiterCfg, err := cfg.RateLimit.LimiterConfig()
	if err != nil {
		return ratelimit.Stats{}, err
	}
	limiter, err := ratelimit.New(limiterCfg)
	if err != nil {
		return ratelimit.Stats{}, err
	}
	defer limiter.Shutdown()
	return limiter.Stats(), nil
}

func fetchLimiterStats(ctx context.Context, base string) (ratelimit.Stats, error) {
	var snapshot ratelimit.Stats

	endpoint := strings.TrimRight(strings.TrimSpace(base), "/") + "/v1/limiter"
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return snapshot, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snapshot, fmt.Errorf("query relay: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return snapshot, fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("decode limiter stats: %w", err)
	}
	return snapshot, nil
}

func limitLines(snapshot ratelimit.Stats, live bool) []string {
	title := "Rate Limit (configured)"
	if live {
		title = "Rate Limit (live)"
	}

	lines := []string{
		title,
		"",
		fmt.Sprintf("policy:    %s", snapshot.Policy),
		fmt.Sprintf("capacity:  %d per %s", snapshot.Capacity, snapshot.Interval),
	}
	if snapshot.Interval > 0 {
		lines = append(lines, fmt.Sprintf("rate:      %.2f/s", float64(snapshot.Capacity)/snapshot.Interval.Seconds()))
	}
	if live {
		lines = append(lines,
			fmt.Sprintf("available: %d", snapshot.Available),
			fmt.Sprintf("waiting:   %d", snapshot.Waiting),
			fmt.Sprintf("admitted:  %d", snapshot.Admitted),
			fmt.Sprintf("window:    %d", snapshot.Window),
		)
		if snapshot.Closed {
			lines = append(lines, "state:     closed")
		}
	}
	return lines
}
