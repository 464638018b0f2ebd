package util

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC so that visually identical input hashes the same.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// HexDecodeKey decodes a hex string and checks it has exactly size bytes.
func HexDecodeKey(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex key: %w", err)
	}
	if len(b) != size {
		WipeBytes(b)
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", size, len(b))
	}
	return b, nil
}
