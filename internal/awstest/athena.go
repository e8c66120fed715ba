package awstest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
)

// Execution is one query submitted to the fake.
type Execution struct {
	ID             string
	SQL            string
	Database       string
	OutputLocation string

	states  []string
	reason  string
	polls   int
	stopped bool
}

// Athena is an in-memory athenaiface.AthenaAPI.
//
// Queries succeed on the first poll unless a rule from FailWhen or
// StatesFor applies.
type Athena struct {
	athenaiface.AthenaAPI

	mu    sync.Mutex
	execs []*Execution
	byID  map[string]*Execution

	// StatesFor, when set, returns the sequence of states reported by
	// successive polls of a query; the last state repeats.
	StatesFor func(sql string) []string
	// FailWhen, when set, returns a non-empty reason to fail a query.
	FailWhen func(sql string) string
	// StartErr is returned by StartQueryExecution when set.
	StartErr error

	// Pages maps an execution id to its result pages.
	Pages map[string][]*athena.ResultSet
}

// NewAthena returns an empty fake.
func NewAthena() *Athena {
	return &Athena{byID: map[string]*Execution{}, Pages: map[string][]*athena.ResultSet{}}
}

// Executions returns the submitted queries in order.
func (f *Athena) Executions() []Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Execution, len(f.execs))
	for i, e := range f.execs {
		out[i] = *e
	}
	return out
}

// SQL returns the submitted statements in order.
func (f *Athena) SQL() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.execs))
	for i, e := range f.execs {
		out[i] = e.SQL
	}
	return out
}

// Stopped reports whether StopQueryExecution was called for id.
func (f *Athena) Stopped(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	return ok && e.stopped
}

func (f *Athena) StartQueryExecutionWithContext(_ aws.Context, in *athena.StartQueryExecutionInput, _ ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	sql := aws.StringValue(in.QueryString)
	e := &Execution{
		ID:     fmt.Sprintf("q-%d", len(f.execs)+1),
		SQL:    sql,
		states: []string{athena.QueryExecutionStateSucceeded},
	}
	if in.QueryExecutionContext != nil {
		e.Database = aws.StringValue(in.QueryExecutionContext.Database)
	}
	if in.ResultConfiguration != nil {
		e.OutputLocation = aws.StringValue(in.ResultConfiguration.OutputLocation)
	}
	if f.StatesFor != nil {
		if st := f.StatesFor(sql); len(st) > 0 {
			e.states = st
		}
	}
	if f.FailWhen != nil {
		if reason := f.FailWhen(sql); reason != "" {
			e.states = []string{athena.QueryExecutionStateFailed}
			e.reason = reason
		}
	}
	f.execs = append(f.execs, e)
	f.byID[e.ID] = e
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(e.ID)}, nil
}

func (f *Athena) GetQueryExecutionWithContext(_ aws.Context, in *athena.GetQueryExecutionInput, _ ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[aws.StringValue(in.QueryExecutionId)]
	if !ok {
		return nil, fmt.Errorf("unknown execution %s", aws.StringValue(in.QueryExecutionId))
	}
	i := e.polls
	if i >= len(e.states) {
		i = len(e.states) - 1
	}
	e.polls++
	state := e.states[i]
	if e.stopped {
		state = athena.QueryExecutionStateCancelled
	}
	return &athena.GetQueryExecutionOutput{QueryExecution: &athena.QueryExecution{
		QueryExecutionId: aws.String(e.ID),
		Status: &athena.QueryExecutionStatus{
			State:             aws.String(state),
			StateChangeReason: aws.String(e.reason),
		},
	}}, nil
}

func (f *Athena) GetQueryResultsWithContext(_ aws.Context, in *athena.GetQueryResultsInput, _ ...request.Option) (*athena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.StringValue(in.QueryExecutionId)
	pages := f.Pages[id]
	idx := 0
	if tok := aws.StringValue(in.NextToken); tok != "" {
		if _, err := fmt.Sscanf(strings.TrimPrefix(tok, "page-"), "%d", &idx); err != nil {
			return nil, fmt.Errorf("bad token %q", tok)
		}
	}
	out := &athena.GetQueryResultsOutput{ResultSet: &athena.ResultSet{}}
	if idx < len(pages) {
		out.ResultSet = pages[idx]
	}
	if idx+1 < len(pages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", idx+1))
	}
	return out, nil
}

func (f *Athena) StopQueryExecutionWithContext(_ aws.Context, in *athena.StopQueryExecutionInput, _ ...request.Option) (*athena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.byID[aws.StringValue(in.QueryExecutionId)]; ok {
		e.stopped = true
	}
	return &athena.StopQueryExecutionOutput{}, nil
}

// ResultSet builds an Athena result page. A nil cell pointer is a missing
// value.
func ResultSet(rows ...[]*string) *athena.ResultSet {
	rs := &athena.ResultSet{}
	for _, r := range rows {
		row := &athena.Row{}
		for _, c := range r {
			row.Data = append(row.Data, &athena.Datum{VarCharValue: c})
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs
}
