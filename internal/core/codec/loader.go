package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docgate/docgate/internal/core"
)

// Format identifies a document file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the encoding from a file extension. Unknown
// extensions and stdin ("-") are treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadDocument reads a single document from path, or stdin when path is "-".
func LoadDocument(path string) (*core.Document, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("document path is required")
	}

	var reader io.Reader
	if trimmed == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(trimmed)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}

	doc, err := DecodeDocument(reader, FormatFromPath(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trimmed, err)
	}
	return doc, nil
}

// DecodeDocument parses one document in the given format.
func DecodeDocument(reader io.Reader, format Format) (*core.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("document is empty")
	}

	doc := &core.Document{}
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	default:
		if err := (JSON{}).Unmarshal(data, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ReadManifest lists document paths from a file, one per line. Blank lines
// and lines starting with # are skipped. Relative paths resolve against the
// manifest's directory.
func ReadManifest(path string) ([]string, error) {
	var reader io.Reader
	baseDir := ""
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
		baseDir = filepath.Dir(path)
	}

	paths := make([]string, 0)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if baseDir != "" && !filepath.IsAbs(raw) {
			raw = filepath.Join(baseDir, raw)
		}
		paths = append(paths, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no document paths found in %s", path)
	}
	return paths, nil
}
