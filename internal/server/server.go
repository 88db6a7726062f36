// Package server exposes the firmware retrieval core as an HTTP API:
// catalog listing, binary details with decryption key, and the streaming
// download proxy.
package server

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/fuslink/fuslink/internal/config"
	"github.com/fuslink/fuslink/internal/firmware"
	"github.com/fuslink/fuslink/internal/fus"
	"github.com/fuslink/fuslink/internal/imei"
	"github.com/fuslink/fuslink/internal/logging"
	"github.com/fuslink/fuslink/internal/stream"
)

// Server wires the protocol client, catalog, and download pipeline behind
// the HTTP routes. Each request runs independently: sessions are acquired
// per request and never shared.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	catalog *firmware.Catalog
	fus     *fus.Client
	pipe    *stream.Pipeline
	tacs    *imei.Table
	breaker *gobreaker.CircuitBreaker
}

// New assembles a Server from its collaborators.
func New(cfg *config.Config, log *logging.Logger, catalog *firmware.Catalog, fusClient *fus.Client, pipe *stream.Pipeline, tacs *imei.Table) *Server {
	// A dead vendor endpoint should fail fast instead of tying up
	// handlers for the full timeout on every request.
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fus-upstream",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only connectivity-class failures should trip the breaker;
			// vendor rejections of a particular request are not outages.
			return !errors.Is(err, fus.ErrUnreachable) && !errors.Is(err, fus.ErrUpstreamTimeout)
		},
	})

	return &Server{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		fus:     fusClient,
		pipe:    pipe,
		tacs:    tacs,
		breaker: breaker,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("GET /{region}/{model}/list", s.handleList)
	mux.HandleFunc("GET /{region}/{model}/latest", s.handleLatest)
	mux.HandleFunc("GET /{region}/{model}/latest/download", s.handleLatest)
	mux.HandleFunc("GET /{region}/{model}/{firmware...}", s.handleBinaryDetails)
	mux.HandleFunc("GET /file/{path...}", s.handleDownload)
	return s.withRequestLog(mux)
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &nethttp.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: download responses stream for as long as the
		// client keeps reading.
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("fuslink server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// withRequestLog tags every request with a UUID and logs its outcome.
func (s *Server) withRequestLog(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	nethttp.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// errorBody is the JSON error shape.
type errorBody struct {
	Error        string `json:"error"`
	VendorStatus int    `json:"vendor_status,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses, carrying the
// vendor status code through when one exists.
func (s *Server) writeError(w nethttp.ResponseWriter, err error) {
	status := nethttp.StatusInternalServerError
	switch {
	case errors.Is(err, fus.ErrCatalogEmpty), errors.Is(err, fus.ErrCatalogUnparseable):
		status = nethttp.StatusNotFound
	case errors.Is(err, fus.ErrUnauthorized):
		status = nethttp.StatusUnauthorized
	case errors.Is(err, fus.ErrInvalidRange):
		status = nethttp.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, fus.ErrUnreachable), errors.Is(err, gobreaker.ErrOpenState):
		status = nethttp.StatusBadGateway
	case errors.Is(err, fus.ErrUpstreamTimeout):
		status = nethttp.StatusGatewayTimeout
	case errors.Is(err, fus.ErrServerRejected):
		status = nethttp.StatusBadGateway
	default:
		var ue *fus.UpstreamError
		if errors.As(err, &ue) {
			status = nethttp.StatusBadGateway
		}
	}

	writeJSON(w, status, errorBody{
		Error:        err.Error(),
		VendorStatus: fus.StatusCode(err),
	})
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
