package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"syscall"

	"github.com/fuslink/fuslink/internal/stream"
)

// handleDownload proxies the firmware byte stream. The decrypt query
// parameter carries the hex key from the details endpoint; without it the
// raw encrypted binary is forwarded. The client's Range header is passed
// through to the vendor.
func (s *Server) handleDownload(w nethttp.ResponseWriter, r *nethttp.Request) {
	remotePath := "/" + strings.Trim(r.PathValue("path"), "/")
	filename := remotePath[strings.LastIndexByte(remotePath, '/')+1:]
	if filename == "" {
		nethttp.NotFound(w, r)
		return
	}

	var key []byte
	if hexKey := r.URL.Query().Get("decrypt"); hexKey != "" {
		var err error
		key, err = hex.DecodeString(hexKey)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, errorBody{Error: "decrypt key is not valid hex"})
			return
		}
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		rangeHeader = "bytes=0-"
	}
	start, end := stream.ParseRange(rangeHeader)
	if err := stream.ValidateRange(start, end, key != nil); err != nil {
		s.writeError(w, err)
		return
	}

	dl, err := s.pipe.Open(r.Context(), stream.Request{
		RemotePath:  remotePath,
		RangeHeader: r.Header.Get("Range"),
		DecryptKey:  key,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer dl.Body.Close()

	outName := filename
	if dl.Decrypted {
		outName = strings.TrimSuffix(strings.TrimSuffix(filename, ".enc4"), ".enc2")
	}
	if custom := r.URL.Query().Get("filename"); custom != "" {
		outName = strings.TrimSuffix(custom, ".zip") + ".zip"
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outName))
	w.Header().Set("Accept-Ranges", "bytes")
	if dl.Decrypted {
		// Decrypted length differs from the ciphertext length once the
		// padding comes off, so no Content-Length is promised.
		w.Header().Set("Content-Type", "application/zip")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		if dl.ContentLength != "" {
			w.Header().Set("Content-Length", dl.ContentLength)
		}
	}
	if dl.ContentRange != "" {
		w.Header().Set("Content-Range", dl.ContentRange)
	}
	w.WriteHeader(dl.StatusCode)

	if _, err := io.Copy(w, dl.Body); err != nil {
		// Disconnected consumers are routine; anything else means the
		// upstream died mid-stream and the response is truncated. The
		// connection is aborted either way so the client cannot mistake
		// the partial body for a complete file.
		if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
			s.log.Error().Err(err).Str("path", remotePath).Msg("download stream aborted")
		}
	}
}
