package util

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// IDToHex converts a binary trace or span ID to its uppercase hex representation.
// Leading zeros are kept. A nil or empty ID yields an empty string.
func IDToHex(byteID []byte) string {
	if len(byteID) == 0 {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(byteID))
}

const (
	spanIDWidth  = 8
	traceIDWidth = 16
)

// NormalizeID converts a textual trace or span ID into the hex form used by
// normalized records. Hex input passes through unchanged. Padded base64 is
// accepted only when it decodes to a span or trace ID width, and is
// re-encoded as uppercase hex. Anything else yields an empty string.
func NormalizeID(id string) string {
	if id == "" {
		return ""
	}
	if isHex(id) {
		return id
	}

	// OTLP/JSON emits standard padding, URL safe is accepted for path segments.
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		b, err := enc.DecodeString(id)
		if err != nil {
			continue
		}
		if len(b) == spanIDWidth || len(b) == traceIDWidth {
			return IDToHex(b)
		}
		return ""
	}

	return ""
}

// EqualIDs compares two textual IDs after normalization, ignoring case.
func EqualIDs(a, b string) bool {
	na, nb := NormalizeID(a), NormalizeID(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.EqualFold(na, nb)
}

func isHex(id string) bool {
	// odd lengths are never a whole number of bytes
	if len(id)%2 == 1 {
		return false
	}
	for _, c := range id {
		if (c >= 'a' && c <= 'f') ||
			(c >= 'A' && c <= 'F') ||
			(c >= '0' && c <= '9') {
			continue
		}
		return false
	}
	return true
}
