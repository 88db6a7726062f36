package fus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fuslink/fuslink/internal/imei"
)

// maxIdentityAttempts bounds the binary-info retry loop. Each attempt
// costs two round trips (nonce + binary-info), so attempts run strictly
// sequentially and never in parallel.
const maxIdentityAttempts = 5

// BinaryMetadata describes the firmware binary the server offers for a
// given region/model/version, including the derived decryption key.
type BinaryMetadata struct {
	DisplayName       string // marketing name of the device
	Filename          string // remote binary filename
	Path              string // remote directory on the download host
	Size              int64  // ciphertext size in bytes
	CRC               string // vendor checksum of the binary
	OSVersion         string // Android version string
	Platform          string
	LastModified      int64  // vendor timestamp, numeric form
	EncryptionVersion int    // 2 or 4, selected by filename suffix
	ChangelogURL      string
	Firmware          string // the normalized firmware version requested
	Identity          string // the device identity that was accepted
	DecryptKey        []byte // per-file key for the selected encryption version
}

// RemotePath is the full server-side path of the binary.
func (m *BinaryMetadata) RemotePath() string {
	return m.Path + m.Filename
}

// DecryptedFilename strips the encryption suffix from the remote
// filename.
func (m *BinaryMetadata) DecryptedFilename() string {
	name := strings.TrimSuffix(m.Filename, ".enc4")
	return strings.TrimSuffix(name, ".enc2")
}

// BinaryInfoRequest identifies the firmware to look up. Identity is an
// optional caller-supplied IMEI, reused verbatim on every attempt when
// set. TACSeed seeds per-attempt identity generation otherwise.
type BinaryInfoRequest struct {
	Region   string
	Model    string
	Firmware string
	Identity string
	TACSeed  string
}

// RetrieveBinaryInfo obtains binary metadata via the bounded identity
// retry loop. On success it returns the metadata together with the
// Session that produced it; that session remains valid for the download
// exchanges that follow.
//
// Per attempt: select a candidate identity, acquire a fresh session, send
// the authenticated binary-info request, then branch on the protocol
// status: 200 succeeds, 408 means the candidate identity was rejected and
// the next attempt runs, 401 and every other status fail immediately.
func (c *Client) RetrieveBinaryInfo(ctx context.Context, req BinaryInfoRequest) (*BinaryMetadata, *Session, error) {
	if req.Identity == "" && req.TACSeed == "" {
		return nil, nil, fmt.Errorf("binary-info: no device identity and no TAC seed for %s", req.Model)
	}

	for attempt := 1; attempt <= maxIdentityAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		identity := req.Identity
		if identity == "" {
			var err error
			identity, err = imei.Generate(req.TACSeed)
			if err != nil {
				return nil, nil, fmt.Errorf("binary-info: %w", err)
			}
		}

		sess, err := c.AcquireSession(ctx)
		if err != nil {
			return nil, nil, err
		}

		msg, err := c.BinaryInform(ctx, sess, req.Firmware, req.Model, req.Region, identity)
		if err != nil {
			return nil, nil, err
		}
		status, err := msg.Status()
		if err != nil {
			return nil, nil, err
		}

		switch status {
		case 200:
			meta, err := c.metadataFromMessage(msg, req, identity)
			if err != nil {
				return nil, nil, err
			}
			c.log.Debug().
				Int("attempt", attempt).
				Str("identity", identity).
				Str("binary", meta.Filename).
				Msg("binary info accepted")
			return meta, sess, nil
		case 408:
			c.log.Debug().
				Int("attempt", attempt).
				Str("identity", identity).
				Msg("device identity rejected, trying next candidate")
			continue
		case 401:
			return nil, nil, fmt.Errorf("%w: binary-info", ErrUnauthorized)
		default:
			return nil, nil, &StatusError{Op: "binary-info", Code: status}
		}
	}
	return nil, nil, fmt.Errorf("%w: %d attempts for %s/%s", ErrMaxAttemptsExceeded, maxIdentityAttempts, req.Region, req.Model)
}

// metadataFromMessage extracts the binary metadata and derives the file
// decryption key. Version 2 keys derive from local inputs; version 4 keys
// need the latest-firmware and logic-value-factory fields of the live
// response.
func (c *Client) metadataFromMessage(msg *Message, req BinaryInfoRequest, identity string) (*BinaryMetadata, error) {
	name, ok := msg.Body.Put.BinaryName.value()
	if !ok || name == "" {
		return nil, fmt.Errorf("binary-info response carries no binary name")
	}
	path, _ := msg.Body.Put.ModelPath.value()

	meta := &BinaryMetadata{
		Filename: name,
		Path:     path,
		Firmware: req.Firmware,
		Identity: identity,
	}
	meta.DisplayName, _ = msg.Body.Put.DisplayName.value()
	meta.CRC, _ = msg.Body.Put.BinaryCRC.value()
	meta.OSVersion, _ = msg.Body.Put.CurrentOSVersion.value()
	meta.Platform, _ = msg.Body.Put.DevicePlatform.value()
	meta.ChangelogURL, _ = msg.Changelog()

	if raw, ok := msg.Body.Put.BinaryByteSize.value(); ok {
		size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("binary-info: bad byte size %q: %w", raw, err)
		}
		meta.Size = size
	}
	if raw, ok := msg.Body.Put.LastModified.value(); ok {
		meta.LastModified, _ = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	}

	// Version-4 binaries are marked by their filename; everything else
	// uses the version-2 scheme.
	if strings.HasSuffix(name, "4") {
		meta.EncryptionVersion = 4
		latest, ok := msg.LatestFirmware()
		if !ok {
			return nil, fmt.Errorf("binary-info: v4 binary without latest firmware field")
		}
		logicValue, ok := msg.Body.Put.LogicValueFactory.value()
		if !ok {
			return nil, fmt.Errorf("binary-info: v4 binary without logic value factory")
		}
		key, err := c.crypto.DeriveKeyV4(latest, logicValue)
		if err != nil {
			return nil, fmt.Errorf("binary-info: %w", err)
		}
		meta.DecryptKey = key
	} else {
		meta.EncryptionVersion = 2
		meta.DecryptKey = c.crypto.DeriveKeyV2(req.Firmware, req.Model, req.Region)
	}
	return meta, nil
}
