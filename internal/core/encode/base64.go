package encode

import (
	"encoding/base64"
	"strings"
)

func DecodeBase64String(value string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(value)
}

func EncodeBase64String(value []byte) string {
	return base64.StdEncoding.EncodeToString(value)
}

// Signature returns value unchanged when it is already standard base64 and
// encodes its raw bytes otherwise. Registry envelopes carry base64 signatures.
func Signature(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if _, err := DecodeBase64String(trimmed); err == nil {
		return trimmed
	}
	return EncodeBase64String([]byte(value))
}
