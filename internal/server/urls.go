package server

import (
	"encoding/json"
	"net/http"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/blobstore"

	"github.com/gorilla/mux"
)

// handleUploadURL issues a pre-signed PUT for the data source's staging key.
// An optional JSON body {"contentType": "..."} sets the signed content type.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	ws, ds := mux.Vars(r)["ws"], mux.Vars(r)["ds"]
	if _, err := s.cfg.Sources.Get(r.Context(), ws, ds); err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		ContentType string `json:"contentType"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeError(w, apperr.Validation("", "invalid body: %v", err))
			return
		}
	}

	u, err := s.cfg.Store.IssueUploadURL(ws, ds, body.ContentType, s.cfg.URLTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleDownloadURL issues a pre-signed GET for the data object of ?date,
// today (UTC) when absent.
func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	ws, ds := mux.Vars(r)["ws"], mux.Vars(r)["ds"]
	if _, err := s.cfg.Sources.Get(r.Context(), ws, ds); err != nil {
		writeError(w, err)
		return
	}

	day := s.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, apperr.Validation("", "date must be YYYY-MM-DD"))
			return
		}
		day = t
	}

	u, err := s.cfg.Store.IssueDownloadURL(blobstore.DataKey(ws, ds, day), s.cfg.URLTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
