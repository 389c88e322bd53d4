package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/codec"
	"github.com/docgate/docgate/internal/observability"
)

// signatureSuffix names a per-document signature file next to the document.
const signatureSuffix = ".sig"

var batchCmd = &cobra.Command{
	Use:   "batch [file...]",
	Short: "Submit many documents through one shared rate limiter",
	Long: `Submit documents concurrently. All workers share one rate limiter, so the
registry never sees more than rate_limit.capacity calls per interval.

Documents come from the arguments and from --manifest (one path per line).
A file named <document>.sig next to a document supplies its signature;
otherwise --signature or --signature-file is used.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addSignatureFlags(batchCmd)
	addOutputFlags(batchCmd)
	addRegistryFlags(batchCmd)
	batchCmd.Flags().String("manifest", "", "File listing document paths, one per line (\"-\" for stdin)")
	batchCmd.Flags().Int("concurrency", 0, "Concurrent submissions (default: workers setting)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, registryOverrides(cmd))
	if err != nil {
		return err
	}

	sources, err := batchSources(cmd, args)
	if err != nil {
		return err
	}

	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency == 0 {
		concurrency = cfg.Workers
	}
	if concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	signature, err := resolveSignature(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	r, err := newRelay(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	startedAt := time.Now()
	outcomes := runBatchSubmissions(ctx, r, sources, signature, concurrency)
	logThroughput(outcomes, startedAt)

	if err := writeOutcomes(cmd, outcomes); err != nil {
		return err
	}
	return batchError(outcomes)
}

func batchSources(cmd *cobra.Command, args []string) ([]string, error) {
	manifest, err := cmd.Flags().GetString("manifest")
	if err != nil {
		return nil, err
	}

	sources := append([]string(nil), args...)
	if strings.TrimSpace(manifest) != "" {
		listed, err := codec.ReadManifest(manifest)
		if err != nil {
			return nil, err
		}
		sources = append(sources, listed...)
	}
	if len(sources) == 0 {
		return nil, errors.New("no documents given: pass files or --manifest")
	}
	return sources, nil
}

// runBatchSubmissions submits every source with at most concurrency calls in
// flight. Outcomes keep the order of sources.
func runBatchSubmissions(ctx context.Context, r *relay, sources []string, signature string, concurrency int) []core.Outcome {
	outcomes := make([]core.Outcome, len(sources))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(concurrency)
	for i, source := range sources {
		p.Go(func(ctx context.Context) error {
			sig, err := signatureFor(source, signature)
			if err != nil {
				outcomes[i] = core.Outcome{
					Source:      source,
					Status:      core.OutcomeInvalid,
					Message:     err.Error(),
					CompletedAt: time.Now().UTC(),
					Err:         err,
				}
				return nil
			}
			outcomes[i], _ = r.submitFile(ctx, source, sig)
			return nil
		})
	}
	_ = p.Wait()

	return outcomes
}

// signatureFor prefers a <source>.sig sidecar over the shared signature.
func signatureFor(source, fallback string) (string, error) {
	if source == "-" {
		return fallback, nil
	}
	data, err := os.ReadFile(source + signatureSuffix)
	switch {
	case err == nil:
		return strings.TrimSpace(string(data)), nil
	case errors.Is(err, os.ErrNotExist):
		return fallback, nil
	default:
		return "", fmt.Errorf("read signature for %s: %w", source, err)
	}
}

// batchError wraps the first failure so its exit code class survives.
func batchError(outcomes []core.Outcome) error {
	failed := 0
	var first *core.Outcome
	for i := range outcomes {
		if outcomes[i].Succeeded() {
			continue
		}
		failed++
		if first == nil {
			first = &outcomes[i]
		}
	}
	if failed == 0 {
		return nil
	}

	cause := first.Err
	if cause == nil {
		cause = errors.New(first.Message)
	}
	return fmt.Errorf("%d of %d submissions failed (first: %s): %w", failed, len(outcomes), first.Source, cause)
}

func logThroughput(outcomes []core.Outcome, startedAt time.Time) {
	logger := observability.Logger()
	if logger == nil || len(outcomes) == 0 {
		return
	}
	elapsed := time.Since(startedAt)
	perSecond := float64(len(outcomes)) / elapsed.Seconds()
	logger.Info("Batch finished",
		zap.Int("documents", len(outcomes)),
		zap.Duration("elapsed", elapsed),
		zap.Float64("per_second", perSecond))
}
