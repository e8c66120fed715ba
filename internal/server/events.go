package server

import (
	"encoding/json"
	"log"
	"net/http"

	"daybook/internal/blobstore"
	"daybook/internal/registry"
)

// s3Event is the part of a storage event notification we read.
type s3Event struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// EventResult reports what happened to one event record.
type EventResult struct {
	Key          string          `json:"key"`
	WorkspaceID  string          `json:"workspaceId,omitempty"`
	DataSourceID string          `json:"dataSourceId,omitempty"`
	Skipped      string          `json:"skipped,omitempty"`
	Status       registry.Status `json:"status,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// maxEventBytes bounds an event notification body.
const maxEventBytes = 1 << 20

// handleEvent processes staged uploads named by a storage event. Records for
// other buckets or outside the upload folder are skipped. The staged object
// is deleted only after a successful run; a failed run leaves it for
// inspection and its error on the data source.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev s3Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event: " + err.Error()})
		return
	}

	ctx := r.Context()
	results := make([]EventResult, 0, len(ev.Records))
	for _, rec := range ev.Records {
		res := EventResult{Key: rec.S3.Object.Key}
		if rec.S3.Bucket.Name != s.cfg.Bucket {
			res.Skipped = "not the workspace bucket"
			results = append(results, res)
			continue
		}
		key, err := blobstore.DecodeEventKey(rec.S3.Object.Key)
		if err != nil {
			res.Skipped = "undecodable key"
			results = append(results, res)
			continue
		}
		res.Key = key
		ws, ds, ok := blobstore.ParseUploadKey(key)
		if !ok {
			res.Skipped = "not in upload directory"
			results = append(results, res)
			continue
		}
		res.WorkspaceID, res.DataSourceID = ws, ds

		log.Printf("server: processing upload ws=%s ds=%s key=%s", ws, ds, key)
		data, err := s.cfg.Store.Read(ctx, key)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if data == nil {
			res.Skipped = "upload no longer exists"
			results = append(results, res)
			continue
		}

		out, err := s.cfg.Ingest.ProcessUpload(ctx, ws, ds, data)
		res.Status = out.Status
		if err != nil {
			log.Printf("server: upload failed ws=%s ds=%s err=%v", ws, ds, err)
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if err := s.cfg.Store.DeleteObject(ctx, key); err != nil {
			log.Printf("server: delete staged upload key=%s err=%v", key, err)
		} else {
			log.Printf("server: deleted staged upload key=%s", key)
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
