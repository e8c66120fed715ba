package dynamo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/config"
	"daybook/internal/registry"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// fakeDynamo keeps items in memory and understands the expressions this
// package issues.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu    sync.Mutex
	items map[string]map[string]*dynamodb.AttributeValue
}

func newFake() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]*dynamodb.AttributeValue{}}
}

func itemKey(k map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(k["workspaceId"].S) + "/" + aws.StringValue(k["dataSourceId"].S)
}

func (f *fakeDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItemWithContext(_ aws.Context, in *dynamodb.UpdateItemInput, _ ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemKey(in.Key)]
	if !ok {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
	}
	for placeholder, name := range in.ExpressionAttributeNames {
		it[aws.StringValue(name)] = in.ExpressionAttributeValues[":"+placeholder[1:]]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) sorted(filter func(map[string]*dynamodb.AttributeValue) bool) []map[string]*dynamodb.AttributeValue {
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []map[string]*dynamodb.AttributeValue
	for _, k := range keys {
		if filter(f.items[k]) {
			out = append(out, f.items[k])
		}
	}
	return out
}

func (f *fakeDynamo) QueryPagesWithContext(_ aws.Context, in *dynamodb.QueryInput, fn func(*dynamodb.QueryOutput, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	ws := aws.StringValue(in.ExpressionAttributeValues[":workspaceId"].S)
	items := f.sorted(func(it map[string]*dynamodb.AttributeValue) bool {
		return aws.StringValue(it["workspaceId"].S) == ws
	})
	f.mu.Unlock()
	// One item per page exercises pagination.
	for i, it := range items {
		if !fn(&dynamodb.QueryOutput{Items: []map[string]*dynamodb.AttributeValue{it}}, i == len(items)-1) {
			break
		}
	}
	return nil
}

func (f *fakeDynamo) ScanPagesWithContext(_ aws.Context, _ *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	items := f.sorted(func(map[string]*dynamodb.AttributeValue) bool { return true })
	f.mu.Unlock()
	fn(&dynamodb.ScanOutput{Items: items}, true)
	return nil
}

/*
TestDynamo_Lifecycle verifies put, get, status updates (including the NULL
error attribute used to clear errors) and both list paths.
*/
func TestDynamo_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFake()
	r := New(fake, "")
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	if r.table != DefaultTable {
		t.Fatalf("table = %q, want %q", r.table, DefaultTable)
	}

	ds := &registry.DataSource{
		WorkspaceID:  "w1",
		DataSourceID: "sales",
		SourceType:   "mysql",
		Method:       registry.MethodExtend,
		Status:       registry.StatusActive,
		Config:       config.Options{"host": "db", "port": float64(3306)},
		Secrets:      map[string]string{"username": "u"},
	}
	if err := r.Put(ctx, ds); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(ctx, &registry.DataSource{WorkspaceID: "w2", DataSourceID: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Get(ctx, "w1", "sales")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Method != registry.MethodExtend || got.Config.Int("port", 0) != 3306 || got.Secrets["username"] != "u" {
		t.Fatalf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(r.now()) {
		t.Fatalf("CreatedAt = %v", got.CreatedAt)
	}

	if err := r.UpdateStatus(ctx, "w1", "sales", registry.StatusUpdate{Status: registry.StatusError, ErrorMessage: "bad"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = r.Get(ctx, "w1", "sales")
	if got.Status != registry.StatusError || got.ErrorMessage != "bad" {
		t.Fatalf("after update: %+v", got)
	}
	if err := r.UpdateStatus(ctx, "w1", "sales", registry.StatusUpdate{Status: registry.StatusActive}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = r.Get(ctx, "w1", "sales")
	if got.ErrorMessage != "" {
		t.Fatalf("error not cleared: %+v", got)
	}

	w1, err := r.List(ctx, "w1")
	if err != nil || len(w1) != 1 {
		t.Fatalf("List(w1) = %+v, %v", w1, err)
	}
	all, err := r.ListAll(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListAll = %+v, %v", all, err)
	}
}

func TestDynamo_NotFound(t *testing.T) {
	t.Parallel()

	r := New(newFake(), "DataSources")
	ctx := context.Background()

	if _, err := r.Get(ctx, "w", "nope"); !errors.Is(err, apperr.ErrDataSourceNotFound) {
		t.Fatalf("Get err = %v", err)
	}
	err := r.UpdateStatus(ctx, "w", "nope", registry.StatusUpdate{Status: registry.StatusActive})
	if !errors.Is(err, apperr.ErrDataSourceNotFound) {
		t.Fatalf("UpdateStatus err = %v", err)
	}
}
