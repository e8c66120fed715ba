// Package ingest runs one upload or poll payload through the ingestion state
// machine:
//
//	received -> normalized -> schema_inferred -> encoded -> stored -> catalog_synced -> active
//
// A payload without rows ends in no_data. Any failure ends in error: the
// message is recorded on the data source and the error is returned to the
// caller unchanged, which decides whether to retry.
//
// One run holds the per-data-source lock from start to finish, so the
// read-modify-write of the day object and the schema swap never interleave
// for the same data source.
package ingest

import (
	"context"
	"log"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/codec/parquet"
	"daybook/internal/lock"
	"daybook/internal/metrics"
	"daybook/internal/normalize"
	"daybook/internal/registry"
	"daybook/internal/schema"
	"daybook/internal/transformer/builtin"
	"daybook/pkg/records"

	"github.com/pkg/errors"
)

// State names one step of a run. Each state is also the metrics step label.
type State string

const (
	StateReceived       State = "received"
	StateNormalized     State = "normalized"
	StateSchemaInferred State = "schema_inferred"
	StateEncoded        State = "encoded"
	StateStored         State = "stored"
	StateCatalogSynced  State = "catalog_synced"
	StateActive         State = "active"
)

// NoDataMessage is recorded on a data source whose payload had no rows.
const NoDataMessage = "No data existent"

// Store is the part of the blob store gateway a run writes through.
type Store interface {
	Write(ctx context.Context, workspaceID, dataSourceID string, data []byte) (string, error)
	AppendMerge(ctx context.Context, workspaceID, dataSourceID string, rows []records.Record, prior, merged schema.Schema) (string, error)
	DeleteAllUnderPrefix(ctx context.Context, workspaceID, dataSourceID string) (int, error)
	ReadSchema(ctx context.Context, workspaceID, dataSourceID string) (schema.Schema, error)
}

// Catalog brings the query catalog in line with a schema.
type Catalog interface {
	Sync(ctx context.Context, workspaceID, dataSourceID string, next schema.Schema) (bool, error)
}

// Statuses is the part of the data source registry a run needs.
type Statuses interface {
	Get(ctx context.Context, workspaceID, dataSourceID string) (*registry.DataSource, error)
	UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u registry.StatusUpdate) error
}

// Deps are the collaborators of a Processor. Store, Catalog and Registry
// are required; the rest default.
type Deps struct {
	Registry   Statuses
	Store      Store
	Catalog    Catalog
	Normalizer *normalize.Normalizer
	Codec      *parquet.Codec
	Locker     lock.Locker
	Validator  builtin.FormatValidator

	// Job labels metrics; defaults to "daybook".
	Job     string
	Verbose bool
}

// Processor runs ingestions. It is safe for concurrent use.
type Processor struct {
	reg       Statuses
	store     Store
	catalog   Catalog
	norm      *normalize.Normalizer
	codec     *parquet.Codec
	locker    lock.Locker
	validator builtin.FormatValidator
	job       string
	verbose   bool
}

// New returns a Processor over d.
func New(d Deps) *Processor {
	p := &Processor{
		reg:       d.Registry,
		store:     d.Store,
		catalog:   d.Catalog,
		norm:      d.Normalizer,
		codec:     d.Codec,
		locker:    d.Locker,
		validator: d.Validator,
		job:       d.Job,
		verbose:   d.Verbose,
	}
	if p.norm == nil {
		p.norm = normalize.New()
	}
	if p.codec == nil {
		p.codec = parquet.New()
	}
	if p.locker == nil {
		p.locker = lock.NewLocal()
	}
	if p.job == "" {
		p.job = "daybook"
	}
	return p
}

// Result summarizes a run.
type Result struct {
	// Success is true only when the run reached active.
	Success bool            `json:"success"`
	Status  registry.Status `json:"status"`
	Rows    int             `json:"rows"`
	Schema  schema.Schema   `json:"schema,omitempty"`
	// Key is the data object written by the run.
	Key            string `json:"key,omitempty"`
	CatalogRebuilt bool   `json:"catalogRebuilt"`
}

// ProcessUpload ingests the bytes of a staged upload.
func (p *Processor) ProcessUpload(ctx context.Context, workspaceID, dataSourceID string, data []byte) (Result, error) {
	return p.Process(ctx, workspaceID, dataSourceID, data)
}

// Process ingests raw, any input the normalizer accepts.
//
// A missing data source fails without touching any status. Every later
// failure is recorded as status error before it is returned.
func (p *Processor) Process(ctx context.Context, workspaceID, dataSourceID string, raw any) (Result, error) {
	unlock, err := p.locker.Lock(ctx, lock.Key(workspaceID, dataSourceID))
	if err != nil {
		return Result{}, errors.Wrap(err, "acquire data source lock")
	}
	defer unlock()

	start := time.Now()
	ds, err := p.reg.Get(ctx, workspaceID, dataSourceID)
	metrics.RecordStep(p.job, string(StateReceived), err, time.Since(start))
	if err != nil {
		return Result{}, err
	}

	r := &run{p: p, ds: ds}
	res, err := r.execute(ctx, raw)
	if err != nil {
		// A cancelled run still records its failure.
		p.setStatus(context.WithoutCancel(ctx), ds, registry.StatusError, err.Error())
		metrics.RecordRun(p.job, string(registry.StatusError))
		log.Printf("ingest: run failed ws=%s ds=%s state=%s err=%v", workspaceID, dataSourceID, r.state, err)
		res.Status = registry.StatusError
		return res, err
	}

	metrics.RecordRun(p.job, string(res.Status))
	log.Printf("ingest: run done ws=%s ds=%s status=%s rows=%d elapsed=%s",
		workspaceID, dataSourceID, res.Status, res.Rows, time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

// run carries the state of one ingestion.
type run struct {
	p     *Processor
	ds    *registry.DataSource
	state State
}

func (r *run) execute(ctx context.Context, raw any) (Result, error) {
	ds := r.ds
	method, err := registry.ParseMethod(string(ds.Method))
	if err != nil {
		return Result{}, apperr.Validation("ingest", "%v", err)
	}

	var batch *records.Batch
	err = r.step(StateNormalized, func() error {
		var err error
		if batch, err = r.p.norm.Normalize(raw); err != nil {
			return err
		}
		ts, err := ds.Config.Transforms()
		if err != nil {
			return err
		}
		chain, err := buildChainFn(ts)
		if err != nil {
			return err
		}
		batch.Rows = chain.Apply(batch.Rows)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	metrics.RecordRow(r.p.job, "normalized", int64(batch.Len()))

	if batch.Len() == 0 {
		r.p.setStatus(ctx, ds, registry.StatusNoData, NoDataMessage)
		return Result{Status: registry.StatusNoData}, nil
	}

	var inferred schema.Schema
	err = r.step(StateSchemaInferred, func() error {
		var err error
		if inferred, err = schema.Infer(batch.Columns, batch.Rows); err != nil {
			return err
		}
		v := r.p.validator
		v.AllowEmpty = v.AllowEmpty || ds.Config.Bool("allow_empty_fields", false)
		if res := v.ValidateBatch(batch); !res.Valid {
			return apperr.Validation("", "%s", res.Error)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Rows: batch.Len(), Schema: inferred}

	// The extend path stores with the union of the persisted and inferred
	// schemas and decodes the existing object with the persisted one.
	var (
		prior   schema.Schema
		encoded []byte
	)
	err = r.step(StateEncoded, func() error {
		if method == registry.MethodExtend {
			var err error
			if prior, err = r.p.store.ReadSchema(ctx, ds.WorkspaceID, ds.DataSourceID); err != nil {
				return err
			}
			res.Schema = schema.Merge(prior, inferred)
			return nil
		}
		var err error
		encoded, err = r.p.codec.Encode(batch.Rows, inferred)
		return err
	})
	if err != nil {
		return res, err
	}

	err = r.step(StateStored, func() error {
		var err error
		if method == registry.MethodExtend {
			res.Key, err = r.p.store.AppendMerge(ctx, ds.WorkspaceID, ds.DataSourceID, batch.Rows, prior, res.Schema)
			return err
		}
		n, err := r.p.store.DeleteAllUnderPrefix(ctx, ds.WorkspaceID, ds.DataSourceID)
		if err != nil {
			return err
		}
		if r.p.verbose && n > 0 {
			log.Printf("ingest: replaced %d data object(s) ws=%s ds=%s", n, ds.WorkspaceID, ds.DataSourceID)
		}
		res.Key, err = r.p.store.Write(ctx, ds.WorkspaceID, ds.DataSourceID, encoded)
		return err
	})
	if err != nil {
		return res, err
	}
	metrics.RecordRow(r.p.job, "stored", int64(batch.Len()))

	err = r.step(StateCatalogSynced, func() error {
		var err error
		res.CatalogRebuilt, err = r.p.catalog.Sync(ctx, ds.WorkspaceID, ds.DataSourceID, res.Schema)
		return err
	})
	if err != nil {
		return res, err
	}

	r.state = StateActive
	r.p.setStatus(ctx, ds, registry.StatusActive, "")
	res.Success = true
	res.Status = registry.StatusActive
	return res, nil
}

// step runs fn as state s and records its outcome.
func (r *run) step(s State, fn func() error) error {
	r.state = s
	start := time.Now()
	err := fn()
	metrics.RecordStep(r.p.job, string(s), err, time.Since(start))
	if r.p.verbose && err == nil {
		log.Printf("ingest: state=%s ws=%s ds=%s took=%s", s, r.ds.WorkspaceID, r.ds.DataSourceID, time.Since(start).Truncate(time.Microsecond))
	}
	return err
}

// setStatus writes status when it differs from what ds already holds. A
// failed write is logged; it never replaces the outcome of the run.
func (p *Processor) setStatus(ctx context.Context, ds *registry.DataSource, status registry.Status, msg string) {
	if ds.Status == status && ds.ErrorMessage == msg {
		return
	}
	err := p.reg.UpdateStatus(ctx, ds.WorkspaceID, ds.DataSourceID, registry.StatusUpdate{Status: status, ErrorMessage: msg})
	if err != nil {
		log.Printf("ingest: status update failed ws=%s ds=%s status=%s err=%v", ds.WorkspaceID, ds.DataSourceID, status, err)
		return
	}
	ds.Status, ds.ErrorMessage = status, msg
}

// buildChainFn is a test seam for the transform chain factory.
var buildChainFn = builtin.Build
