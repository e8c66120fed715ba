package blobstore

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// SignedURL is a time-limited URL for a single object.
type SignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueUploadURL returns a pre-signed PUT URL for the data source's staging
// key. ttl <= 0 uses the store default.
func (s *Store) IssueUploadURL(workspaceID, dataSourceID, contentType string, ttl time.Duration) (SignedURL, error) {
	key := UploadKey(workspaceID, dataSourceID)
	if contentType == "" {
		contentType = "text/csv"
	}
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	return s.presign(req.Presign, "presign put", key, ttl)
}

// IssueDownloadURL returns a pre-signed GET URL for key.
func (s *Store) IssueDownloadURL(key string, ttl time.Duration) (SignedURL, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return s.presign(req.Presign, "presign get", key, ttl)
}

func (s *Store) presign(sign func(time.Duration) (string, error), op, key string, ttl time.Duration) (SignedURL, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	u, err := sign(ttl)
	if err != nil {
		return SignedURL{}, s.fault(op, key, err)
	}
	return SignedURL{URL: u, Key: key, ExpiresAt: s.now().Add(ttl).UTC()}, nil
}
