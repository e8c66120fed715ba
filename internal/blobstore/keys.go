package blobstore

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// dayLayout names one data object per UTC calendar day.
const dayLayout = "2006-01-02"

func dataSourceRoot(workspaceID, dataSourceID string) string {
	return fmt.Sprintf("workspaces/%s/day-book/dataSources/%s/", workspaceID, dataSourceID)
}

// DataPrefix is the folder holding a data source's Parquet objects. It is
// also the catalog table location.
func DataPrefix(workspaceID, dataSourceID string) string {
	return dataSourceRoot(workspaceID, dataSourceID) + "data/"
}

// DataKey is the object key for the given day.
func DataKey(workspaceID, dataSourceID string, day time.Time) string {
	return DataPrefix(workspaceID, dataSourceID) + day.UTC().Format(dayLayout) + ".parquet"
}

// SchemaKey is the key of the persisted schema document.
func SchemaKey(workspaceID, dataSourceID string) string {
	return dataSourceRoot(workspaceID, dataSourceID) + "schema.json"
}

// UploadKey is the staging key clients upload raw files to.
func UploadKey(workspaceID, dataSourceID string) string {
	return fmt.Sprintf("workspaces/%s/day-book/dataSources/uploads/%s.csv", workspaceID, dataSourceID)
}

// ResultsPrefix is where the query engine writes result sets for a workspace.
func ResultsPrefix(workspaceID string) string {
	return fmt.Sprintf("workspaces/%s/day-book/athenaResults/", workspaceID)
}

var uploadKeyRE = regexp.MustCompile(`^workspaces/([^/]+)/day-book/dataSources/uploads/(.+)$`)

// ParseUploadKey extracts the workspace and data source from a staging key.
// The data source id is the file name up to its first dot.
func ParseUploadKey(key string) (workspaceID, dataSourceID string, ok bool) {
	m := uploadKeyRE.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}
	name := path.Base(m[2])
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", "", false
	}
	return m[1], name, true
}

// DecodeEventKey decodes an object key as delivered in storage event
// notifications, where spaces arrive as '+' and other bytes are
// percent-encoded.
func DecodeEventKey(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
