// Package stream implements the ranged download pipeline: range header
// validation, the upstream exchanges, and incremental decryption of the
// byte stream as it arrives.
package stream

import (
	"strconv"
	"strings"

	"github.com/fuslink/fuslink/internal/fus"
)

// ParseRange parses an inclusive byte-range header of the form
// "bytes=start-end". Empty bounds default to 0, so "bytes=50-" yields
// (50, 0) with 0 acting as the open-ended sentinel. A header without the
// separator, or with non-numeric bounds, yields (-1, -1).
func ParseRange(header string) (int64, int64) {
	spec := strings.TrimPrefix(strings.TrimSpace(header), "bytes=")
	start, end, ok := strings.Cut(spec, "-")
	if !ok {
		return -1, -1
	}
	s, err := parseBound(start)
	if err != nil {
		return -1, -1
	}
	e, err := parseBound(end)
	if err != nil {
		return -1, -1
	}
	return s, e
}

func parseBound(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// ValidateRange checks a parsed range before any network call is made.
// Decryption requires the stream to begin at the first cipher block, so a
// bounded end offset cannot be combined with it: the cipher cannot
// establish its state mid-file.
func ValidateRange(start, end int64, decrypt bool) error {
	if start < 0 || end < 0 {
		return fus.ErrInvalidRange
	}
	if decrypt && end != 0 {
		return fus.ErrInvalidRange
	}
	return nil
}
