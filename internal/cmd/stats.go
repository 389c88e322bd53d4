package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/docgate/docgate/internal/core/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show shared submission counters",
	Long: `Show submission counters aggregated in the redis stats backend.

With the memory backend counters live only inside the submitting process,
so this command needs stats.backend=redis.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("output", "table", "Output format: table, json")
	statsCmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := limitsFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(cfg.Stats.Backend), "redis") {
		return fmt.Errorf("stats backend is %q: counters are only shared with stats.backend=redis", cfg.Stats.Backend)
	}

	ctx := commandContext(cmd)
	store, closeFn := openStatsStore(ctx, cfg.Stats)
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}
	if _, ok := store.(*stats.RedisStore); !ok {
		return errors.New("redis stats backend unreachable at " + cfg.Stats.Redis.Addr)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	sink, err := openSink(cmd, outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	if format == "json" {
		payload, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, string(payload))
		return err
	}

	_, err = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(summaryLines(summary), "\n"), 0))
	return err
}

func summaryLines(summary stats.Summary) []string {
	lines := []string{"Submissions", "", fmt.Sprintf("total: %d", summary.Total)}
	if summary.Total == 0 {
		return append(lines, "(no submissions recorded)")
	}

	lines = append(lines, "")
	lines = append(lines, countLines(summary.ByOutcome)...)
	if len(summary.ByStatus) > 0 {
		lines = append(lines, "", "by HTTP status:")
		lines = append(lines, countLines(summary.ByStatus)...)
	}
	return lines
}

func countLines(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %d", key, counts[key]))
	}
	return lines
}
