package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// openSink opens path for writing, creating parent directories. Empty or
// "-" selects the command's stdout.
func openSink(cmd *cobra.Command, path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output", string(output.FormatTable), "Output format: table, json, markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

// writeOutcomes renders outcomes with the command's --output and --out flags.
func writeOutcomes(cmd *cobra.Command, outcomes []core.Outcome) error {
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatOutcomes(outcomes)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) == "" {
		return nil
	}

	sink, err := openSink(cmd, outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func addSignatureFlags(cmd *cobra.Command) {
	cmd.Flags().String("signature", "", "Detached document signature")
	cmd.Flags().String("signature-file", "", "Read the signature from a file")
	cmd.MarkFlagsMutuallyExclusive("signature", "signature-file")
}

// resolveSignature returns --signature, or the trimmed contents of --signature-file.
func resolveSignature(cmd *cobra.Command) (string, error) {
	signature, err := cmd.Flags().GetString("signature")
	if err != nil {
		return "", err
	}
	path, err := cmd.Flags().GetString("signature-file")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return strings.TrimSpace(signature), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read signature: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// registryOverrides turns command flags into config overrides.
func registryOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	if f := cmd.Flags().Lookup("registry-url"); f != nil && f.Changed {
		overrides["registry.url"] = f.Value.String()
	}
	if f := cmd.Flags().Lookup("signature-mode"); f != nil && f.Changed {
		overrides["registry.signature_mode"] = f.Value.String()
	}
	return overrides
}

func addRegistryFlags(cmd *cobra.Command) {
	cmd.Flags().String("registry-url", "", "Override registry.url")
	cmd.Flags().String("signature-mode", "", "Override registry.signature_mode: header, envelope, none")
}
