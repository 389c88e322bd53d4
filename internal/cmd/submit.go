package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/observability"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit one document",
	Long: `Submit one document (JSON or YAML, "-" for stdin) to the registry.

The call waits for a rate-limit slot, posts the document once, and prints
the outcome. Nothing is retried.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	addSignatureFlags(submitCmd)
	addOutputFlags(submitCmd)
	addRegistryFlags(submitCmd)
	submitCmd.Flags().Duration("timeout", 0, "Give up if no slot is granted and the call has not finished within this time (0 waits indefinitely)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, registryOverrides(cmd))
	if err != nil {
		return err
	}
	signature, err := resolveSignature(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r, err := newRelay(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	started := time.Now()
	outcome, submitErr := r.submitFile(ctx, args[0], signature)
	if logger := observability.Logger(); logger != nil {
		logger.Debug("Submission finished",
			zap.String("source", outcome.Source),
			zap.String("status", string(outcome.Status)),
			zap.Duration("elapsed", time.Since(started)))
	}

	if err := writeOutcomes(cmd, []core.Outcome{outcome}); err != nil {
		return err
	}
	if submitErr != nil {
		return fmt.Errorf("submit %s: %w", args[0], submitErr)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
