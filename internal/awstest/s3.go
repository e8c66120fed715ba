// Package awstest provides in-memory fakes of the S3 and Athena clients for
// tests in other packages.
package awstest

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Object is a stored blob.
type Object struct {
	Body        []byte
	ContentType string
}

// S3 is an in-memory s3iface.S3API. Methods it does not override fall
// through to a real client configured with static credentials, which is
// enough for request builders and pre-signing.
type S3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string]Object
	ops     []string

	// PageSize limits keys per ListObjectsV2 page. Zero means 1000.
	PageSize int
	// Fail maps an operation name ("put", "get", "list", "delete", or
	// "deletes" for batch deletes) to the error it returns.
	Fail map[string]error
}

// NewS3 returns an empty fake.
func NewS3() *S3 {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String("us-east-1"),
		Credentials: credentials.NewStaticCredentials("AKIDTEST", "secret", ""),
	}))
	return &S3{S3API: s3.New(sess), objects: map[string]Object{}, Fail: map[string]error{}}
}

// Put seeds an object.
func (f *S3) Put(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = Object{Body: append([]byte(nil), body...)}
}

// Get returns the object at key.
func (f *S3) Get(key string) (Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

// Keys returns all stored keys, sorted.
func (f *S3) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedKeys("")
}

// Ops returns the operations performed so far, e.g. "put:key".
func (f *S3) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *S3) sortedKeys(prefix string) []string {
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (f *S3) record(op, key string) error {
	f.ops = append(f.ops, op+":"+key)
	return f.Fail[op]
}

func (f *S3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Key)
	if err := f.record("put", key); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = Object{Body: body, ContentType: aws.StringValue(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *S3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Key)
	if err := f.record("get", key); err != nil {
		return nil, err
	}
	o, ok := f.objects[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.Body))}, nil
}

func (f *S3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	prefix := aws.StringValue(in.Prefix)
	if err := f.record("list", prefix); err != nil {
		f.mu.Unlock()
		return err
	}
	keys := f.sortedKeys(prefix)
	f.mu.Unlock()

	size := f.PageSize
	if size <= 0 {
		size = 1000
	}
	for start := 0; ; start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		last := end >= len(keys)
		if !fn(page, last) || last {
			return nil
		}
	}
}

func (f *S3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deletes", ""); err != nil {
		return nil, err
	}
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *S3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Key)
	if err := f.record("delete", key); err != nil {
		return nil, err
	}
	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}
