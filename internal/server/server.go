// Package server exposes the HTTP surface of the ingestion service.
//
// Routes:
//
//	POST /events/s3                                       storage event notification for staged uploads
//	POST /workspaces/{ws}/datasources/{ds}/upload-url     pre-signed PUT for the staging key
//	GET  /workspaces/{ws}/datasources/{ds}/download-url   pre-signed GET for a day's data object (?date=YYYY-MM-DD)
//	GET  /workspaces/{ws}/datasources/{ds}/rows           one page of query results
//	GET  /healthz                                         liveness
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/blobstore"
	"daybook/internal/ingest"
	"daybook/internal/query"
	"daybook/internal/registry"

	"github.com/gorilla/mux"
)

// Uploader runs a staged upload through ingestion.
type Uploader interface {
	ProcessUpload(ctx context.Context, workspaceID, dataSourceID string, data []byte) (ingest.Result, error)
}

// Sources resolves data sources.
type Sources interface {
	Get(ctx context.Context, workspaceID, dataSourceID string) (*registry.DataSource, error)
}

// Tables maps a data source to its catalog table.
type Tables interface {
	TableFQN(dataSourceID string) string
}

// Config wires a Server.
type Config struct {
	Addr string
	// Bucket is the only bucket whose events are processed.
	Bucket string
	URLTTL time.Duration

	Store   *blobstore.Store
	Ingest  Uploader
	Sources Sources
	Query   *query.Executor
	Tables  Tables
}

// Server wraps http.Server with the service routes.
type Server struct {
	cfg    Config
	router *mux.Router
	now    func() time.Time
}

// New constructs a Server with its routes.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, router: mux.NewRouter(), now: time.Now}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("server: listening addr=%s", s.cfg.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events/s3", s.handleEvent).Methods(http.MethodPost)

	ds := r.PathPrefix("/workspaces/{ws}/datasources/{ds}").Subrouter()
	ds.HandleFunc("/upload-url", s.handleUploadURL).Methods(http.MethodPost)
	ds.HandleFunc("/download-url", s.handleDownloadURL).Methods(http.MethodGet)
	ds.HandleFunc("/rows", s.handleRows).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON renders v with status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// writeError maps err onto a status code. Storage and query faults keep
// their own opaque messages.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal error"
	var (
		se *apperr.StorageError
		qf *apperr.QueryFailedError
		qc *apperr.QueryCancelledError
	)
	switch {
	case apperr.IsValidation(err):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrDataSourceNotFound):
		code, msg = http.StatusNotFound, "data source not found"
	case errors.As(err, &se):
		code, msg = http.StatusBadGateway, se.Error()
	case errors.As(err, &qf):
		code, msg = http.StatusBadGateway, qf.Error()
	case errors.As(err, &qc):
		code, msg = http.StatusConflict, qc.Error()
	default:
		log.Printf("server: %v", err)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
