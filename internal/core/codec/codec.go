// Package codec converts documents to and from their wire and file forms.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docgate/docgate/internal/core"
)

// Serializer converts a document to and from its wire representation.
type Serializer interface {
	Marshal(doc *core.Document) ([]byte, error)
	Unmarshal(data []byte, doc *core.Document) error
	ContentType() string
}

// JSON is the registry wire codec.
type JSON struct {
	Indent bool
}

var _ Serializer = JSON{}

// Marshal encodes doc without HTML escaping.
func (c JSON) Marshal(doc *core.Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if c.Indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal decodes data into doc, rejecting unknown fields.
func (c JSON) Unmarshal(data []byte, doc *core.Document) error {
	if doc == nil {
		return errors.New("document target is required")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// ContentType is the HTTP media type of the encoding.
func (c JSON) ContentType() string {
	return "application/json"
}
