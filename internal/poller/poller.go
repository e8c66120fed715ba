// Package poller refreshes connector-backed data sources.
//
// Each due data source is polled through its connector, retried a bounded
// number of times, and the payload is handed to ingestion. A poll that keeps
// failing marks the data source as error; ingestion failures are recorded by
// ingestion itself.
package poller

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"daybook/internal/connector"
	"daybook/internal/ingest"
	"daybook/internal/registry"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Registry is the part of the data source registry the poller needs.
type Registry interface {
	ListAll(ctx context.Context) ([]registry.DataSource, error)
	List(ctx context.Context, workspaceID string) ([]registry.DataSource, error)
	UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u registry.StatusUpdate) error
}

// Ingester runs one payload through ingestion.
type Ingester interface {
	Process(ctx context.Context, workspaceID, dataSourceID string, raw any) (ingest.Result, error)
}

// Config tunes a Poller. Zero values default.
type Config struct {
	// Attempts per poll, default 3.
	Attempts int
	// Concurrency bounds PollAll, default 4.
	Concurrency int
	// Backoff is the pause between attempts, default 1s.
	Backoff time.Duration
}

// Poller polls data sources.
type Poller struct {
	reg Registry
	ing Ingester
	cfg Config
}

// New returns a Poller.
func New(reg Registry, ing Ingester, cfg Config) *Poller {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Poller{reg: reg, ing: ing, cfg: cfg}
}

// Outcome is what happened to one data source.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeIngested   Outcome = "ingested"
	OutcomePollFailed Outcome = "poll_failed"
	OutcomeFailed     Outcome = "failed"
)

// getConnectorFn is a test seam for connector lookup.
var getConnectorFn = connector.Get

// Due reports whether ds is polled: its kind has a connector and its status
// is active or error.
func Due(ds registry.DataSource) bool {
	if !connector.Pollable(ds.SourceType) {
		return false
	}
	return ds.Status == registry.StatusActive || ds.Status == registry.StatusError
}

// PollDataSource polls one data source and ingests the payload.
func (p *Poller) PollDataSource(ctx context.Context, ds registry.DataSource) (Outcome, error) {
	if !Due(ds) {
		return OutcomeSkipped, nil
	}
	c, err := getConnectorFn(ds.SourceType)
	if err != nil {
		return OutcomeSkipped, nil
	}

	payload, err := p.poll(ctx, c, ds)
	if err != nil {
		u := registry.StatusUpdate{Status: registry.StatusError, ErrorMessage: err.Error()}
		if uerr := p.reg.UpdateStatus(context.WithoutCancel(ctx), ds.WorkspaceID, ds.DataSourceID, u); uerr != nil {
			log.Printf("poller: status update failed ws=%s ds=%s err=%v", ds.WorkspaceID, ds.DataSourceID, uerr)
		}
		return OutcomePollFailed, err
	}

	if _, err := p.ing.Process(ctx, ds.WorkspaceID, ds.DataSourceID, payload); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeIngested, nil
}

// poll calls the connector up to Attempts times and returns the last error.
func (p *Poller) poll(ctx context.Context, c connector.Connector, ds registry.DataSource) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		out, err := c.Poll(ctx, ds.Config, ds.Secrets)
		if err == nil {
			return out, nil
		}
		lastErr = err
		log.Printf("poller: attempt %d/%d failed ws=%s ds=%s err=%v", attempt, p.cfg.Attempts, ds.WorkspaceID, ds.DataSourceID, err)
		if attempt == p.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.Backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// Summary counts the outcomes of a sweep.
type Summary struct {
	Total    int
	Skipped  int
	Ingested int
	Failed   int
}

// PollAll polls every due data source, or those of one workspace when
// workspaceID is set. A failing data source does not stop the others.
func (p *Poller) PollAll(ctx context.Context, workspaceID string) (Summary, error) {
	var (
		list []registry.DataSource
		err  error
	)
	if workspaceID != "" {
		list, err = p.reg.List(ctx, workspaceID)
	} else {
		list, err = p.reg.ListAll(ctx)
	}
	if err != nil {
		return Summary{}, errors.Wrap(err, "list data sources")
	}

	var skipped, ingested, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, ds := range list {
		ds := ds
		g.Go(func() error {
			out, err := p.PollDataSource(gctx, ds)
			switch out {
			case OutcomeSkipped:
				skipped.Add(1)
			case OutcomeIngested:
				ingested.Add(1)
			default:
				failed.Add(1)
				log.Printf("poller: %s ws=%s ds=%s err=%v", out, ds.WorkspaceID, ds.DataSourceID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{
		Total:    len(list),
		Skipped:  int(skipped.Load()),
		Ingested: int(ingested.Load()),
		Failed:   int(failed.Load()),
	}
	log.Printf("poller: sweep done total=%d ingested=%d failed=%d skipped=%d", s.Total, s.Ingested, s.Failed, s.Skipped)
	return s, ctx.Err()
}
