// Package config defines the JSON-serializable service configuration for the
// ingestion service, plus the Options bag used for per-connector and
// per-transform settings.
//
// A service file is optional. Defaults are applied first, then the file, then
// environment overrides:
//
//	{
//	  "bucket":   "acme-workspaces",
//	  "region":   "ap-southeast-2",
//	  "athena":   { "database": "daybook", "work_group": "primary" },
//	  "registry": { "kind": "postgres", "dsn": "postgresql://..." },
//	  "metrics":  { "backend": "prompush", "pushgateway_url": "http://pushgateway:9091" },
//	  "poller":   { "schedule": "@every 15m", "concurrency": 4 }
//	}
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Service is the top-level service configuration.
type Service struct {
	// Bucket is the workspace bucket holding uploads, data objects, schema
	// documents and query results.
	Bucket string `json:"bucket"`
	Region string `json:"region"`

	Athena     Athena     `json:"athena"`
	Registry   Registry   `json:"registry"`
	Lock       Lock       `json:"lock"`
	Metrics    Metrics    `json:"metrics"`
	Server     Server     `json:"server"`
	Poller     Poller     `json:"poller"`
	Validation Validation `json:"validation"`
}

// Athena configures the query engine.
type Athena struct {
	Database  string `json:"database"`
	WorkGroup string `json:"work_group"`

	PollIntervalMS    int `json:"poll_interval_ms"`
	MaxPollIntervalMS int `json:"max_poll_interval_ms"`
	// TimeoutSeconds bounds a single query, 0 means no bound beyond the
	// caller's context.
	TimeoutSeconds int `json:"timeout_seconds"`
	// MaxAttempts bounds the number of status polls, 0 means unbounded.
	MaxAttempts int `json:"max_attempts"`
}

// Registry selects the data source registry backend.
type Registry struct {
	// Kind is one of the registered registry kinds (dynamo, postgres, mysql,
	// sqlite, mssql).
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
	// Table is the registry table name; backends apply their own default.
	Table string `json:"table"`
}

// Lock selects the per-data-source lock.
type Lock struct {
	// Kind is "local" (in-process) or "postgres" (advisory locks).
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "prompush" or "datadog".
	Backend        string `json:"backend"`
	Job            string `json:"job"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Server configures the HTTP surface.
type Server struct {
	ListenAddr string `json:"listen_addr"`
	// URLTTLSeconds is the lifetime of issued pre-signed URLs.
	URLTTLSeconds int `json:"url_ttl_seconds"`
}

// Poller configures scheduled polling of connector-backed data sources.
type Poller struct {
	Schedule    string `json:"schedule"`
	Concurrency int    `json:"concurrency"`
	Attempts    int    `json:"attempts"`
}

// Validation configures the format check run before encoding.
type Validation struct {
	// AllowEmptyFields accepts nil and empty string values.
	AllowEmptyFields bool `json:"allow_empty_fields"`
}

// Transform defines a single row transform. A data source may list
// transforms under its "transforms" option.
type Transform struct {
	// Kind selects the transform implementation ("trim", "dedup").
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the selected transform.
	Options Options `json:"options"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Service {
	return Service{
		Region:   "us-east-1",
		Athena:   Athena{Database: "daybook", WorkGroup: "primary", PollIntervalMS: 500, MaxPollIntervalMS: 5000, TimeoutSeconds: 600},
		Registry: Registry{Kind: "sqlite", DSN: "file:daybook.db"},
		Lock:     Lock{Kind: "local"},
		Metrics:  Metrics{Backend: "none", Job: "daybook"},
		Server:   Server{ListenAddr: ":8080", URLTTLSeconds: 3600},
		Poller:   Poller{Schedule: "@every 15m", Concurrency: 4, Attempts: 3},
	}
}

// Load builds a Service from defaults, the optional JSON file at path and the
// process environment.
func Load(path string) (Service, error) {
	s := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return s, errors.Wrap(err, "read service config")
		}
		if err := json.Unmarshal(b, &s); err != nil {
			return s, errors.Wrapf(err, "decode service config %s", path)
		}
	}
	if err := ApplyEnv(&s, os.LookupEnv); err != nil {
		return s, err
	}
	return s, nil
}

// ApplyEnv overlays environment variables onto s.
func ApplyEnv(s *Service, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("WORKSPACE_BUCKET", &s.Bucket)
	str("AWS_REGION", &s.Region)
	str("ATHENA_DATABASE", &s.Athena.Database)
	str("ATHENA_WORKGROUP", &s.Athena.WorkGroup)
	str("REGISTRY_KIND", &s.Registry.Kind)
	str("REGISTRY_DSN", &s.Registry.DSN)
	str("REGISTRY_TABLE", &s.Registry.Table)
	str("LOCK_KIND", &s.Lock.Kind)
	str("LOCK_DSN", &s.Lock.DSN)
	str("METRICS_BACKEND", &s.Metrics.Backend)
	str("PUSHGATEWAY_URL", &s.Metrics.PushgatewayURL)
	str("DD_AGENT_ADDR", &s.Metrics.DatadogAddr)
	str("LISTEN_ADDR", &s.Server.ListenAddr)
	str("POLL_SCHEDULE", &s.Poller.Schedule)

	if v, ok := lookup("POLL_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "POLL_CONCURRENCY=%q", v)
		}
		s.Poller.Concurrency = n
	}
	if v, ok := lookup("ALLOW_EMPTY_FIELDS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "ALLOW_EMPTY_FIELDS=%q", v)
		}
		s.Validation.AllowEmptyFields = b
	}
	return nil
}

// PollInterval returns the first query poll delay.
func (a Athena) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// MaxPollInterval returns the cap on the query poll delay.
func (a Athena) MaxPollInterval() time.Duration {
	return time.Duration(a.MaxPollIntervalMS) * time.Millisecond
}

// Timeout returns the per-query bound, 0 when unbounded.
func (a Athena) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// URLTTL returns the pre-signed URL lifetime.
func (s Server) URLTTL() time.Duration {
	return time.Duration(s.URLTTLSeconds) * time.Second
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It performs only
// minimal type coercion and returns provided defaults when a key is absent or
// of an unexpected type.
//
// Options holds connector and transform settings whose shape varies by
// implementation.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// Numeric strings are accepted too, since connector settings often arrive
// from form fields.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such as
// a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key (which may itself be a nested
// map[string]any, []any, or primitive). This is useful for retrieving nested
// configuration blocks that will be unmarshaled into a typed struct by the
// caller.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// Transforms decodes the "transforms" list, if any.
func (o Options) Transforms() ([]Transform, error) {
	raw := o.Any("transforms")
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "encode transforms")
	}
	var ts []Transform
	if err := json.Unmarshal(b, &ts); err != nil {
		return nil, errors.Wrap(err, "decode transforms")
	}
	return ts, nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null options
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
