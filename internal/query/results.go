package query

import (
	"context"

	"daybook/pkg/records"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/pkg/errors"
)

// Page is one page of query results.
type Page struct {
	Columns       []string         `json:"columns"`
	Rows          []records.Record `json:"rows"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

// FetchPage reads one page of results. On the first page (empty token) the
// leading header row is consumed as column labels. A missing cell is nil;
// every other value is a string. pageSize <= 0 uses DefaultPageSize.
func (e *Executor) FetchPage(ctx context.Context, id, pageToken string, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	in := &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
		MaxResults:       aws.Int64(int64(pageSize)),
	}
	if pageToken != "" {
		in.NextToken = aws.String(pageToken)
	}
	out, err := e.client.GetQueryResultsWithContext(ctx, in)
	if err != nil {
		return Page{}, errors.Wrapf(err, "get query results %s", id)
	}

	page := Page{NextPageToken: aws.StringValue(out.NextToken)}
	rs := out.ResultSet
	if rs == nil {
		return page, nil
	}

	rows := rs.Rows
	if rs.ResultSetMetadata != nil {
		for _, ci := range rs.ResultSetMetadata.ColumnInfo {
			page.Columns = append(page.Columns, aws.StringValue(ci.Name))
		}
	}
	if pageToken == "" && len(rows) > 0 {
		if len(page.Columns) == 0 {
			for _, d := range rows[0].Data {
				page.Columns = append(page.Columns, aws.StringValue(d.VarCharValue))
			}
		}
		rows = rows[1:]
	}

	page.Rows = make([]records.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(records.Record, len(page.Columns))
		for i, col := range page.Columns {
			var v any
			if i < len(row.Data) && row.Data[i] != nil && row.Data[i].VarCharValue != nil {
				v = *row.Data[i].VarCharValue
			}
			rec[col] = v
		}
		page.Rows = append(page.Rows, rec)
	}
	return page, nil
}

// RunQuery submits sql, waits for it and collects up to maxPages pages of
// rows. maxPages <= 0 reads every page.
func (e *Executor) RunQuery(ctx context.Context, sql, outputLocation string, pageSize, maxPages int) ([]records.Record, error) {
	id, err := e.Submit(ctx, sql, outputLocation)
	if err != nil {
		return nil, err
	}

	var (
		out   []records.Record
		token string
	)
	for n := 0; maxPages <= 0 || n < maxPages; n++ {
		page, err := e.FetchPage(ctx, id, token, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Rows...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	return out, nil
}
