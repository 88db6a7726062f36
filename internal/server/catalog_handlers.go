package server

import (
	nethttp "net/http"
	"strings"

	"github.com/fuslink/fuslink/internal/firmware"
)

// versionEntry is one element of the /list response.
type versionEntry struct {
	Firmware string   `json:"firmware"`
	IsLatest bool     `json:"is_latest,omitempty"`
	PDA      *pdaInfo `json:"pda,omitempty"`
}

// pdaInfo is the decoded build metadata block.
type pdaInfo struct {
	Bootloader string `json:"bl,omitempty"`
	Date       string `json:"date"`
	Iteration  string `json:"it"`
}

func buildPDA(version string) *pdaInfo {
	info, err := firmware.DecodeBuildInfo(version)
	if err != nil {
		return nil
	}
	return &pdaInfo{
		Bootloader: info.Class,
		Date:       info.Date(),
		Iteration:  info.Iteration(),
	}
}

// handleList returns the available firmware versions for a device,
// latest first, each with its decoded build info.
func (s *Server) handleList(w nethttp.ResponseWriter, r *nethttp.Request) {
	region, model := r.PathValue("region"), r.PathValue("model")

	result, err := s.breaker.Execute(func() (any, error) {
		return s.catalog.ListVersions(r.Context(), region, model)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries := result.([]firmware.Entry)

	out := make([]versionEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, versionEntry{
			Firmware: e.Version,
			IsLatest: e.IsLatest,
			PDA:      buildPDA(e.Version),
		})
	}
	writeJSON(w, nethttp.StatusOK, out)
}

// handleLatest resolves the latest firmware and redirects to its binary
// details, or straight to the download when the /download form was
// requested.
func (s *Server) handleLatest(w nethttp.ResponseWriter, r *nethttp.Request) {
	region, model := r.PathValue("region"), r.PathValue("model")

	result, err := s.breaker.Execute(func() (any, error) {
		return s.catalog.Latest(r.Context(), region, model)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	latest := result.(string)

	target := "/" + region + "/" + model + "/" + latest
	if strings.HasSuffix(r.URL.Path, "/download") {
		target += "/download"
	}
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	nethttp.Redirect(w, r, target, nethttp.StatusFound)
}
