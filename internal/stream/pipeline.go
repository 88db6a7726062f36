package stream

import (
	"context"
	"io"

	"github.com/fuslink/fuslink/internal/fus"
	"github.com/fuslink/fuslink/internal/logging"
)

// Pipeline drives a ranged firmware download: register the file, open
// the byte stream, and decrypt it on the fly when a key is supplied. A
// single upstream producer feeds a single consumer; decrypted output is
// produced no faster than the consumer reads, so no unbounded buffering
// occurs anywhere.
type Pipeline struct {
	fus       *fus.Client
	log       *logging.Logger
	chunkSize int
}

// NewPipeline creates a download pipeline. chunkSize tunes how much
// ciphertext is pulled per upstream read; zero selects the default.
func NewPipeline(client *fus.Client, log *logging.Logger, chunkSize int) *Pipeline {
	return &Pipeline{fus: client, log: log, chunkSize: chunkSize}
}

// Request describes one download. RangeHeader is the raw inclusive
// byte-range header; empty means "from start, unbounded". DecryptKey
// enables on-the-fly decryption when non-nil. Session is optional; a
// fresh one is acquired when nil, and is owned by this download either
// way — sessions are never shared across concurrent downloads.
type Request struct {
	RemotePath  string
	RangeHeader string
	DecryptKey  []byte
	Session     *fus.Session
}

// Download is a live decrypted or raw byte stream. Body must be closed;
// closing early releases the upstream connection.
type Download struct {
	Body          io.ReadCloser
	StatusCode    int    // upstream HTTP status (200 or 206)
	ContentLength string // upstream length; empty when decrypting, the decrypted size differs from the ciphertext
	ContentRange  string // forwarded verbatim when the upstream sent one
	Decrypted     bool
}

// Open validates the range, registers the file, and opens the ranged
// byte stream. Range validation happens before any network call. The
// pipeline does not retry failed downloads; that responsibility sits
// with the caller.
func (p *Pipeline) Open(ctx context.Context, req Request) (*Download, error) {
	rangeHeader := req.RangeHeader
	if rangeHeader == "" {
		rangeHeader = "bytes=0-"
	}
	start, end := ParseRange(rangeHeader)
	if err := ValidateRange(start, end, req.DecryptKey != nil); err != nil {
		return nil, err
	}

	sess := req.Session
	if sess == nil {
		var err error
		sess, err = p.fus.AcquireSession(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := p.fus.InitDownload(ctx, sess, req.RemotePath); err != nil {
		return nil, err
	}

	resp, err := p.fus.StartDownload(ctx, sess, req.RemotePath, rangeHeader)
	if err != nil {
		return nil, err
	}

	dl := &Download{
		StatusCode:   resp.StatusCode,
		ContentRange: resp.Header.Get("Content-Range"),
	}

	if req.DecryptKey != nil {
		body, err := NewDecryptReader(resp.Body, req.DecryptKey, p.chunkSize)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		dl.Body = body
		dl.Decrypted = true
	} else {
		dl.Body = resp.Body
		dl.ContentLength = resp.Header.Get("Content-Length")
	}

	p.log.Debug().
		Str("path", req.RemotePath).
		Int("status", dl.StatusCode).
		Bool("decrypt", dl.Decrypted).
		Str("range", rangeHeader).
		Msg("download stream opened")
	return dl, nil
}
