// Package query submits SQL to Athena, waits for the execution to reach a
// terminal state, and pages through its results.
//
// Polling is bounded: the caller's context, an optional Timeout and an
// optional MaxAttempts all end the wait, and the execution is stopped on the
// service when the wait is abandoned. The delay between polls grows
// exponentially from PollInterval up to MaxPollInterval.
package query

import (
	"context"
	"fmt"
	"log"
	"time"

	"daybook/internal/apperr"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/pkg/errors"
)

// DefaultPageSize is the number of rows requested per result page.
const DefaultPageSize = 50

// Config configures an Executor.
//
// Zero values are given sensible defaults:
//   - PollInterval:    500ms
//   - MaxPollInterval: 5s
//   - Timeout:         none (the caller's context bounds the wait)
//   - MaxAttempts:     none
type Config struct {
	Database  string
	WorkGroup string

	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Timeout         time.Duration
	MaxAttempts     int
}

// Executor runs queries against one Athena database.
type Executor struct {
	client athenaiface.AthenaAPI
	cfg    Config

	// sleep is injectable to make tests fast and deterministic.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an Executor, applying defaults for zero values.
func New(client athenaiface.AthenaAPI, cfg Config) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 5 * time.Second
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	return &Executor{client: client, cfg: cfg, sleep: sleepWithContext}
}

// Database returns the configured database name.
func (e *Executor) Database() string { return e.cfg.Database }

// Start submits sql and returns the execution id without waiting.
func (e *Executor) Start(ctx context.Context, sql, outputLocation string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		ResultConfiguration: &athena.ResultConfiguration{
			OutputLocation: aws.String(outputLocation),
		},
	}
	if e.cfg.Database != "" {
		in.QueryExecutionContext = &athena.QueryExecutionContext{Database: aws.String(e.cfg.Database)}
	}
	if e.cfg.WorkGroup != "" {
		in.WorkGroup = aws.String(e.cfg.WorkGroup)
	}
	out, err := e.client.StartQueryExecutionWithContext(ctx, in)
	if err != nil {
		return "", errors.Wrap(err, "start query")
	}
	return aws.StringValue(out.QueryExecutionId), nil
}

// Submit starts sql and waits until it succeeds. FAILED and CANCELLED
// executions surface as *apperr.QueryFailedError and
// *apperr.QueryCancelledError.
func (e *Executor) Submit(ctx context.Context, sql, outputLocation string) (string, error) {
	id, err := e.Start(ctx, sql, outputLocation)
	if err != nil {
		return "", err
	}
	if err := e.Wait(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// Wait polls execution id until it reaches a terminal state.
func (e *Executor) Wait(ctx context.Context, id string) error {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			e.stop(id)
			return errors.Wrapf(err, "wait for query %s", id)
		}

		out, err := e.client.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(id),
		})
		if err != nil {
			if ctx.Err() != nil {
				e.stop(id)
				return errors.Wrapf(ctx.Err(), "wait for query %s", id)
			}
			return errors.Wrapf(err, "get query execution %s", id)
		}

		state, reason := status(out)
		switch state {
		case athena.QueryExecutionStateSucceeded:
			return nil
		case athena.QueryExecutionStateFailed:
			return &apperr.QueryFailedError{ExecutionID: id, Reason: reason}
		case athena.QueryExecutionStateCancelled:
			return &apperr.QueryCancelledError{ExecutionID: id}
		}

		if e.cfg.MaxAttempts > 0 && attempt+1 >= e.cfg.MaxAttempts {
			e.stop(id)
			return fmt.Errorf("query %s still %s after %d polls", id, state, attempt+1)
		}

		d := backoffDuration(e.cfg.PollInterval, attempt, e.cfg.MaxPollInterval)
		if err := e.sleep(ctx, d); err != nil {
			e.stop(id)
			return errors.Wrapf(err, "wait for query %s", id)
		}
	}
}

// stop asks the service to cancel an abandoned execution. It uses its own
// short deadline because the caller's context is usually already done.
func (e *Executor) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.client.StopQueryExecutionWithContext(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	}); err != nil {
		log.Printf("query: stop %s failed: %v", id, err)
	}
}

func status(out *athena.GetQueryExecutionOutput) (state, reason string) {
	if out == nil || out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return "", ""
	}
	st := out.QueryExecution.Status
	return aws.StringValue(st.State), aws.StringValue(st.StateChangeReason)
}

// backoffDuration returns the exponential backoff duration for the given
// attempt number (0-based), clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	if attempt > 30 {
		return max
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext sleeps for d but aborts early if ctx is canceled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
