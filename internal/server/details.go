package server

import (
	"encoding/hex"
	"fmt"
	nethttp "net/http"
	"regexp"
	"strings"

	"github.com/fuslink/fuslink/internal/fus"
)

// firmwarePattern constrains the 4-component firmware path segment.
var firmwarePattern = regexp.MustCompile(`^[A-Z0-9]*/[A-Z0-9]*/[A-Z0-9]*/[A-Z0-9]*$`)

// binaryDetails is the binary-details JSON shape.
type binaryDetails struct {
	DisplayName         string   `json:"display_name"`
	Size                int64    `json:"size"`
	SizeReadable        string   `json:"size_readable"`
	Filename            string   `json:"filename"`
	Path                string   `json:"path"`
	Version             string   `json:"version"`
	EncryptVersion      int      `json:"encrypt_version"`
	LastModified        int64    `json:"last_modified"`
	DecryptKey          string   `json:"decrypt_key"`
	ChangelogURL        string   `json:"firmware_changelog_url,omitempty"`
	Platform            string   `json:"platform"`
	CRC                 string   `json:"crc"`
	DownloadPath        string   `json:"download_path"`
	DownloadPathDecrypt string   `json:"download_path_decrypt"`
	PDA                 *pdaInfo `json:"pda,omitempty"`
	Identity            string   `json:"imei"`
	Firmware            string   `json:"firmware"`
}

// handleBinaryDetails looks up the binary metadata for an explicit
// firmware version. Appending /download to the firmware path redirects
// straight into the decrypted download.
func (s *Server) handleBinaryDetails(w nethttp.ResponseWriter, r *nethttp.Request) {
	region, model := r.PathValue("region"), r.PathValue("model")
	fwPath := strings.TrimSuffix(r.PathValue("firmware"), "/")

	isDownload := strings.HasSuffix(fwPath, "/download")
	version := strings.TrimSuffix(fwPath, "/download")
	if !firmwarePattern.MatchString(version) {
		nethttp.NotFound(w, r)
		return
	}

	req := fus.BinaryInfoRequest{
		Region:   region,
		Model:    model,
		Firmware: version,
		Identity: r.URL.Query().Get("imei"),
	}
	if req.Identity == "" {
		tac, ok := s.tacs.TAC(model)
		if !ok {
			s.writeError(w, fmt.Errorf("no identity supplied and no TAC known for model %s", model))
			return
		}
		req.TACSeed = tac
	}

	result, err := s.breaker.Execute(func() (any, error) {
		meta, _, err := s.fus.RetrieveBinaryInfo(r.Context(), req)
		return meta, err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	meta := result.(*fus.BinaryMetadata)

	key := hex.EncodeToString(meta.DecryptKey)
	downloadPath := "/file" + meta.RemotePath()
	if isDownload {
		nethttp.Redirect(w, r, downloadPath+"?decrypt="+key, nethttp.StatusFound)
		return
	}

	base := requestBase(r)
	writeJSON(w, nethttp.StatusOK, binaryDetails{
		DisplayName:         meta.DisplayName,
		Size:                meta.Size,
		SizeReadable:        fmt.Sprintf("%.2f GB", float64(meta.Size)/1024/1024/1024),
		Filename:            meta.Filename,
		Path:                meta.Path,
		Version:             strings.ReplaceAll(meta.OSVersion, "(", " ("),
		EncryptVersion:      meta.EncryptionVersion,
		LastModified:        meta.LastModified,
		DecryptKey:          key,
		ChangelogURL:        meta.ChangelogURL,
		Platform:            meta.Platform,
		CRC:                 meta.CRC,
		DownloadPath:        base + downloadPath,
		DownloadPathDecrypt: base + downloadPath + "?decrypt=" + key,
		PDA:                 buildPDA(version),
		Identity:            meta.Identity,
		Firmware:            version,
	})
}

// requestBase reconstructs the externally visible scheme://host prefix.
func requestBase(r *nethttp.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
