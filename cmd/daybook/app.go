package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"daybook/internal/blobstore"
	"daybook/internal/catalog"
	"daybook/internal/config"
	"daybook/internal/ingest"
	"daybook/internal/lock"
	"daybook/internal/metrics"
	"daybook/internal/metrics/datadog"
	"daybook/internal/metrics/prompush"
	"daybook/internal/normalize"
	"daybook/internal/query"
	"daybook/internal/registry"
	"daybook/internal/transformer/builtin"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// app holds the wired service components.
type app struct {
	cfg     config.Service
	reg     registry.Registry
	store   *blobstore.Store
	exec    *query.Executor
	catalog *catalog.Synchronizer
	proc    *ingest.Processor

	closers []func()
}

// loadConfig reads and validates the service configuration. Warnings are
// printed; errors fail.
func loadConfig(g *globals, stderr io.Writer) (config.Service, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	issues := config.ValidateService(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return cfg, errors.New("configuration is invalid")
	}
	return cfg, nil
}

// newApp connects every backend named by cfg.
func newApp(ctx context.Context, cfg config.Service, verbose bool) (*app, error) {
	a := &app{cfg: cfg}

	a.closers = append(a.closers, setupMetrics(cfg.Metrics, verbose))

	reg, err := registry.New(ctx, registry.Config{
		Kind:   cfg.Registry.Kind,
		DSN:    cfg.Registry.DSN,
		Table:  cfg.Registry.Table,
		Region: cfg.Region,
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "open registry")
	}
	a.reg = reg
	a.closers = append(a.closers, reg.Close)

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.Kind == "postgres" {
		pg, err := lock.NewPostgres(ctx, cfg.Lock.DSN)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "open lock")
		}
		locker = pg
		a.closers = append(a.closers, pg.Close)
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "aws session")
	}

	a.store = blobstore.New(s3.New(sess), blobstore.Config{Bucket: cfg.Bucket, URLTTL: cfg.Server.URLTTL()}, nil)
	a.exec = query.New(athena.New(sess), query.Config{
		Database:        cfg.Athena.Database,
		WorkGroup:       cfg.Athena.WorkGroup,
		PollInterval:    cfg.Athena.PollInterval(),
		MaxPollInterval: cfg.Athena.MaxPollInterval(),
		Timeout:         cfg.Athena.Timeout(),
		MaxAttempts:     cfg.Athena.MaxAttempts,
	})
	a.catalog = catalog.New(a.store, a.exec, cfg.Athena.Database)
	a.proc = ingest.New(ingest.Deps{
		Registry:   reg,
		Store:      a.store,
		Catalog:    a.catalog,
		Normalizer: normalize.New(),
		Locker:     locker,
		Validator:  builtin.FormatValidator{AllowEmpty: cfg.Validation.AllowEmptyFields},
		Job:        cfg.Metrics.Job,
		Verbose:    verbose,
	})

	if verbose {
		log.Printf("daybook: bucket=%s region=%s database=%s registry=%s lock=%s metrics=%s",
			cfg.Bucket, cfg.Region, cfg.Athena.Database, cfg.Registry.Kind, cfg.Lock.Kind, cfg.Metrics.Backend)
	}
	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// setupMetrics installs the configured backend and returns its flush
// function. An unusable backend leaves metrics disabled.
func setupMetrics(m config.Metrics, verbose bool) func() {
	nop := func() {}
	job := m.Job
	if job == "" {
		job = "daybook"
	}

	switch m.Backend {
	case "prompush":
		b, err := prompush.NewBackend(job, m.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", m.PushgatewayURL, m.Backend, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := m.DatadogAddr
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "daybook.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: addr=%v, backend=%v", addr, m.Backend)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
			_ = b.Close()
		}

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", m.Backend)
		}
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", m.Backend)
		return nop
	}

	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
