package server

import (
	"net/http"
	"strconv"

	"daybook/internal/apperr"
	"daybook/internal/blobstore"

	"github.com/gorilla/mux"
)

// maxPageSize is the largest page the query engine returns.
const maxPageSize = 1000

// handleRows returns one page of the data source's rows. Without
// ?executionId a "SELECT *" is submitted first and its id is returned with
// the page so clients can follow nextPageToken.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	ws, ds := mux.Vars(r)["ws"], mux.Vars(r)["ds"]
	q := r.URL.Query()

	pageSize := 0
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageSize {
			writeError(w, apperr.Validation("", "pageSize must be between 1 and %d", maxPageSize))
			return
		}
		pageSize = n
	}

	ctx := r.Context()
	id := q.Get("executionId")
	if id == "" {
		if _, err := s.cfg.Sources.Get(ctx, ws, ds); err != nil {
			writeError(w, err)
			return
		}
		sql := "SELECT * FROM " + s.cfg.Tables.TableFQN(ds)
		var err error
		id, err = s.cfg.Query.Submit(ctx, sql, "s3://"+s.cfg.Bucket+"/"+blobstore.ResultsPrefix(ws))
		if err != nil {
			writeError(w, err)
			return
		}
	}

	page, err := s.cfg.Query.FetchPage(ctx, id, q.Get("pageToken"), pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executionId":   id,
		"columns":       page.Columns,
		"rows":          page.Rows,
		"nextPageToken": page.NextPageToken,
	})
}
