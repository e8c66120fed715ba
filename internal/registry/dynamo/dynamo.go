// Package dynamo implements the registry on a DynamoDB table keyed by
// workspaceId (partition) and dataSourceId (sort).
package dynamo

import (
	"context"
	"strings"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/config"
	"daybook/internal/registry"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "DataSources"

// item is the stored attribute layout.
type item struct {
	WorkspaceID  string            `dynamodbav:"workspaceId"`
	DataSourceID string            `dynamodbav:"dataSourceId"`
	Name         string            `dynamodbav:"name,omitempty"`
	SourceType   string            `dynamodbav:"sourceType,omitempty"`
	Method       string            `dynamodbav:"method,omitempty"`
	Status       string            `dynamodbav:"status,omitempty"`
	Error        *string           `dynamodbav:"error"`
	Config       map[string]any    `dynamodbav:"config,omitempty"`
	Secrets      map[string]string `dynamodbav:"secrets,omitempty"`
	CreatedAt    string            `dynamodbav:"createdAt,omitempty"`
	LastUpdate   string            `dynamodbav:"lastUpdate,omitempty"`
}

// Repository is a DynamoDB-backed registry.Registry.
type Repository struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	now    func() time.Time
}

var _ registry.Registry = (*Repository)(nil)

func init() {
	registry.Register("dynamo", func(ctx context.Context, cfg registry.Config) (registry.Registry, error) {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
		if err != nil {
			return nil, errors.Wrap(err, "dynamo: session")
		}
		return New(dynamodb.New(sess), cfg.Table), nil
	})
}

// New returns a Repository over client and table.
func New(client dynamodbiface.DynamoDBAPI, table string) *Repository {
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	return &Repository{client: client, table: table, now: time.Now}
}

func key(workspaceID, dataSourceID string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"workspaceId":  {S: aws.String(workspaceID)},
		"dataSourceId": {S: aws.String(dataSourceID)},
	}
}

// Get implements registry.Registry.
func (r *Repository) Get(ctx context.Context, workspaceID, dataSourceID string) (*registry.DataSource, error) {
	out, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(workspaceID, dataSourceID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "dynamo: get data source")
	}
	if len(out.Item) == 0 {
		return nil, errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	ds, err := decode(out.Item)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// Put implements registry.Registry.
func (r *Repository) Put(ctx context.Context, ds *registry.DataSource) error {
	now := r.now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.LastUpdate = now

	it := item{
		WorkspaceID:  ds.WorkspaceID,
		DataSourceID: ds.DataSourceID,
		Name:         ds.Name,
		SourceType:   ds.SourceType,
		Method:       string(ds.Method),
		Status:       string(ds.Status),
		Config:       ds.Config,
		Secrets:      ds.Secrets,
		CreatedAt:    ds.CreatedAt.Format(time.RFC3339Nano),
		LastUpdate:   ds.LastUpdate.Format(time.RFC3339Nano),
	}
	if ds.ErrorMessage != "" {
		it.Error = aws.String(ds.ErrorMessage)
	}
	av, err := dynamodbattribute.MarshalMap(it)
	if err != nil {
		return errors.Wrap(err, "dynamo: encode data source")
	}
	if _, err := r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	}); err != nil {
		return errors.Wrap(err, "dynamo: put data source")
	}
	return nil
}

// UpdateStatus implements registry.Registry.
func (r *Repository) UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u registry.StatusUpdate) error {
	errAttr := &dynamodb.AttributeValue{NULL: aws.Bool(true)}
	if u.ErrorMessage != "" {
		errAttr = &dynamodb.AttributeValue{S: aws.String(u.ErrorMessage)}
	}
	_, err := r.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 key(workspaceID, dataSourceID),
		UpdateExpression:    aws.String("SET #status = :status, #error = :error, #lastUpdate = :lastUpdate"),
		ConditionExpression: aws.String("attribute_exists(dataSourceId)"),
		ExpressionAttributeNames: map[string]*string{
			"#status":     aws.String("status"),
			"#error":      aws.String("error"),
			"#lastUpdate": aws.String("lastUpdate"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":status":     {S: aws.String(string(u.Status))},
			":error":      errAttr,
			":lastUpdate": {S: aws.String(r.now().UTC().Format(time.RFC3339Nano))},
		},
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	if err != nil {
		return errors.Wrap(err, "dynamo: update status")
	}
	return nil
}

// List implements registry.Registry.
func (r *Repository) List(ctx context.Context, workspaceID string) ([]registry.DataSource, error) {
	var (
		out     []registry.DataSource
		pageErr error
	)
	err := r.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("workspaceId = :workspaceId"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":workspaceId": {S: aws.String(workspaceID)},
		},
	}, func(page *dynamodb.QueryOutput, _ bool) bool {
		out, pageErr = appendItems(out, page.Items)
		return pageErr == nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "dynamo: list data sources")
	}
	return out, pageErr
}

// ListAll implements registry.Registry.
func (r *Repository) ListAll(ctx context.Context) ([]registry.DataSource, error) {
	var (
		out     []registry.DataSource
		pageErr error
	)
	err := r.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		out, pageErr = appendItems(out, page.Items)
		return pageErr == nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "dynamo: scan data sources")
	}
	return out, pageErr
}

// Close implements registry.Registry.
func (r *Repository) Close() {}

func appendItems(out []registry.DataSource, items []map[string]*dynamodb.AttributeValue) ([]registry.DataSource, error) {
	for _, av := range items {
		ds, err := decode(av)
		if err != nil {
			return out, err
		}
		out = append(out, ds)
	}
	return out, nil
}

func decode(av map[string]*dynamodb.AttributeValue) (registry.DataSource, error) {
	var it item
	if err := dynamodbattribute.UnmarshalMap(av, &it); err != nil {
		return registry.DataSource{}, errors.Wrap(err, "dynamo: decode data source")
	}
	method, err := registry.ParseMethod(it.Method)
	if err != nil {
		return registry.DataSource{}, errors.Wrapf(err, "data source %s/%s", it.WorkspaceID, it.DataSourceID)
	}
	ds := registry.DataSource{
		WorkspaceID:  it.WorkspaceID,
		DataSourceID: it.DataSourceID,
		Name:         it.Name,
		SourceType:   it.SourceType,
		Method:       method,
		Status:       registry.Status(it.Status),
		Config:       config.Options(it.Config),
		Secrets:      it.Secrets,
	}
	if ds.Config == nil {
		ds.Config = config.Options{}
	}
	if it.Error != nil {
		ds.ErrorMessage = *it.Error
	}
	ds.CreatedAt, _ = time.Parse(time.RFC3339Nano, it.CreatedAt)
	ds.LastUpdate, _ = time.Parse(time.RFC3339Nano, it.LastUpdate)
	return ds, nil
}
