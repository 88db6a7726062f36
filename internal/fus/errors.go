// Package fus implements the client side of the Samsung FUS (firmware
// update server) protocol: nonce challenge sessions, binary-info lookup
// with bounded identity retry, and the authenticated download exchanges.
package fus

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that carry no upstream status code.
// Callers match these with errors.Is.
var (
	// ErrCatalogEmpty indicates the version manifest had no versioninfo
	// section at all (unknown model/region).
	ErrCatalogEmpty = errors.New("firmware catalog is empty")

	// ErrCatalogUnparseable indicates the manifest was present but the
	// latest entry could not be parsed.
	ErrCatalogUnparseable = errors.New("firmware catalog could not be parsed")

	// ErrUnauthorized indicates the FUS server rejected the session
	// signature (protocol status 401).
	ErrUnauthorized = errors.New("unauthorized by FUS server")

	// ErrUnreachable indicates the FUS server could not be contacted.
	ErrUnreachable = errors.New("FUS server unreachable")

	// ErrServerRejected indicates a non-success HTTP status on the nonce
	// challenge.
	ErrServerRejected = errors.New("FUS server rejected nonce request")

	// ErrMaxAttemptsExceeded indicates the binary-info retry loop ran out
	// of device identity candidates.
	ErrMaxAttemptsExceeded = errors.New("no valid device identity after maximum attempts")

	// ErrInvalidRange indicates a malformed Range header, or a bounded
	// range combined with decryption. Decryption needs the stream from the
	// first cipher block, so only open-ended ranges can be decrypted.
	ErrInvalidRange = errors.New("invalid byte range")

	// ErrUpstreamTimeout indicates a per-request timeout expired while
	// talking to the FUS server.
	ErrUpstreamTimeout = errors.New("FUS request timed out")
)

// StatusError reports an unexpected FUS protocol status code, i.e. the
// <Status> value inside the XML body, which is distinct from the HTTP
// status of the carrying response.
type StatusError struct {
	Op   string // the FUS operation, e.g. "binary-info"
	Code int    // the protocol status code
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("FUS %s returned status %d", e.Op, e.Code)
}

// UpstreamError reports a non-success HTTP status from the download
// endpoints (anything other than 200 or 206 on the ranged GET, or a
// failed binary-init exchange).
type UpstreamError struct {
	Op   string
	Code int // HTTP status code
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected %s with HTTP %d", e.Op, e.Code)
}

// StatusCode extracts the vendor status code from a StatusError or
// UpstreamError chain. Returns 0 when the error carries no code.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return 0
}
