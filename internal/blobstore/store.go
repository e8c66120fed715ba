// Package blobstore is the gateway to the object store that holds a data
// source's Parquet objects, its schema document and the staging area for raw
// uploads. It also issues pre-signed upload and download URLs.
//
// Every S3 fault is logged with its full detail and returned as an opaque
// *apperr.StorageError naming the operation and the target. Missing objects
// are not errors: reads return nil.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/codec/parquet"
	"daybook/internal/schema"
	"daybook/pkg/records"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// DefaultURLTTL is the lifetime of issued pre-signed URLs.
const DefaultURLTTL = time.Hour

// maxDeleteBatch is the S3 limit on keys per DeleteObjects call.
const maxDeleteBatch = 1000

// Config configures a Store.
type Config struct {
	Bucket string
	URLTTL time.Duration
}

// Store reads and writes a workspace bucket.
type Store struct {
	client s3iface.S3API
	bucket string
	ttl    time.Duration
	codec  *parquet.Codec

	now func() time.Time
}

// New returns a Store over client. codec may be nil to use the default.
func New(client s3iface.S3API, cfg Config, codec *parquet.Codec) *Store {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	if codec == nil {
		codec = parquet.New()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		ttl:    cfg.URLTTL,
		codec:  codec,
		now:    time.Now,
	}
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// URI returns the s3:// form of key.
func (s *Store) URI(key string) string { return "s3://" + s.bucket + "/" + key }

// TodayKey is the data object key for the current UTC day.
func (s *Store) TodayKey(workspaceID, dataSourceID string) string {
	return DataKey(workspaceID, dataSourceID, s.now())
}

// Write stores an encoded data object under today's key, replacing any
// object already there, and returns the key.
func (s *Store) Write(ctx context.Context, workspaceID, dataSourceID string, data []byte) (string, error) {
	key := s.TodayKey(workspaceID, dataSourceID)
	if err := s.put(ctx, key, data, parquet.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

// Read returns the object at key, or nil when it does not exist.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	b, err := s.get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return b, err
}

// get fetches the object at key. A missing object is apperr.ErrNotFound.
func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "get %s", s.URI(key))
		}
		return nil, s.fault("get", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, s.fault("get", key, err)
	}
	return buf.Bytes(), nil
}

// AppendMerge appends rows to today's data object.
//
// The existing object is decoded with prior, the schema it was written
// with; when prior is nil, merged is used instead. Existing rows come first.
// The combined rows are encoded with merged and written back.
func (s *Store) AppendMerge(
	ctx context.Context,
	workspaceID, dataSourceID string,
	rows []records.Record,
	prior, merged schema.Schema,
) (string, error) {
	key := s.TodayKey(workspaceID, dataSourceID)

	existing, err := s.Read(ctx, key)
	if err != nil {
		return "", err
	}

	all := rows
	if existing != nil {
		readWith := prior
		if len(readWith) == 0 {
			readWith = merged
		}
		old, err := s.codec.Decode(ctx, existing, readWith)
		if err != nil {
			return "", errors.Wrapf(err, "decode existing object %s", key)
		}
		all = append(old, rows...)
	}

	data, err := s.codec.Encode(all, merged)
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, key, data, parquet.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteAllUnderPrefix removes every data object of the data source and
// returns how many keys were deleted. Nothing to delete is not an error.
func (s *Store) DeleteAllUnderPrefix(ctx context.Context, workspaceID, dataSourceID string) (int, error) {
	prefix := DataPrefix(workspaceID, dataSourceID)

	var keys []*s3.ObjectIdentifier
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return 0, s.fault("list", prefix, err)
	}

	deleted := 0
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, s.fault("delete", prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			err := awserr.New(aws.StringValue(first.Code), aws.StringValue(first.Message), nil)
			return deleted, s.fault("delete", aws.StringValue(first.Key), err)
		}
		deleted += end - start
	}
	return deleted, nil
}

// DeleteObject removes a single object, such as a processed upload.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.fault("delete", key, err)
	}
	return nil
}

// ReadSchema loads the persisted schema, or nil when none has been written.
func (s *Store) ReadSchema(ctx context.Context, workspaceID, dataSourceID string) (schema.Schema, error) {
	key := SchemaKey(workspaceID, dataSourceID)
	b, err := s.Read(ctx, key)
	if err != nil || b == nil {
		return nil, err
	}
	var out schema.Schema
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrapf(err, "decode schema %s", key)
	}
	return out, nil
}

// WriteSchema overwrites the persisted schema with sc, pretty-printed.
func (s *Store) WriteSchema(ctx context.Context, workspaceID, dataSourceID string, sc schema.Schema) error {
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode schema")
	}
	return s.put(ctx, SchemaKey(workspaceID, dataSourceID), b, "application/json")
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return s.fault("put", key, err)
	}
	return nil
}

// fault logs an S3 error and hides it behind a StorageError. Other errors,
// including context cancellation, are returned unchanged.
func (s *Store) fault(op, key string, err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	target := s.URI(key)
	log.Printf("blobstore: %s %s failed: code=%s message=%q err=%v", op, target, aerr.Code(), aerr.Message(), err)
	return &apperr.StorageError{Op: op, Target: target, Err: err}
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
