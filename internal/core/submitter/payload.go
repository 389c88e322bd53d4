package submitter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/encode"
)

// SignatureMode selects where the detached signature travels.
type SignatureMode string

const (
	// SignatureHeader sends the bare document and the signature in a header.
	SignatureHeader SignatureMode = "header"
	// SignatureEnvelope wraps the base64 document and signature in the
	// registry's create-document body.
	SignatureEnvelope SignatureMode = "envelope"
	// SignatureNone drops the signature.
	SignatureNone SignatureMode = "none"
)

const (
	DefaultSignatureHeader = "Signature"
	DefaultDocumentFormat  = "MANUAL"
	DefaultDocumentType    = "LP_INTRODUCE_GOODS"
)

// ParseSignatureMode resolves a mode name; empty selects header.
func ParseSignatureMode(value string) (SignatureMode, error) {
	switch SignatureMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", SignatureHeader:
		return SignatureHeader, nil
	case SignatureEnvelope:
		return SignatureEnvelope, nil
	case SignatureNone:
		return SignatureNone, nil
	default:
		return "", fmt.Errorf("unknown signature mode %q (expected header, envelope, none)", value)
	}
}

// SignaturePolicy configures signature placement.
type SignaturePolicy struct {
	Mode           SignatureMode
	Header         string
	DocumentFormat string
	DocumentType   string
}

func (p SignaturePolicy) normalized() SignaturePolicy {
	if p.Mode == "" {
		p.Mode = SignatureHeader
	}
	if strings.TrimSpace(p.Header) == "" {
		p.Header = DefaultSignatureHeader
	}
	if strings.TrimSpace(p.DocumentFormat) == "" {
		p.DocumentFormat = DefaultDocumentFormat
	}
	return p
}

type envelope struct {
	DocumentFormat  string `json:"document_format"`
	ProductDocument string `json:"product_document"`
	Signature       string `json:"signature"`
	Type            string `json:"type"`
}

// buildPayload returns the request body and extra headers for one submission.
func buildPayload(policy SignaturePolicy, doc *core.Document, serialized []byte, signature string) ([]byte, map[string]string, error) {
	switch policy.Mode {
	case SignatureNone:
		return serialized, nil, nil
	case SignatureEnvelope:
		docType := strings.TrimSpace(policy.DocumentType)
		if docType == "" && doc != nil {
			docType = strings.TrimSpace(doc.DocType)
		}
		if docType == "" {
			docType = DefaultDocumentType
		}
		body, err := json.Marshal(envelope{
			DocumentFormat:  policy.DocumentFormat,
			ProductDocument: encode.EncodeBase64String(serialized),
			Signature:       encode.Signature(signature),
			Type:            docType,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encode envelope: %w", err)
		}
		return body, nil, nil
	default:
		return serialized, map[string]string{policy.Header: strings.TrimSpace(signature)}, nil
	}
}
