package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

// -----------------------------------------------------------------------------
// Service decoding tests
// -----------------------------------------------------------------------------
//
// These tests validate that a service file overlays the defaults field by
// field and that environment variables win over both.

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	t.Parallel()

	const js = `{
	  "bucket": "acme-workspaces",
	  "athena": { "database": "analytics", "max_attempts": 40 },
	  "registry": { "kind": "postgres", "dsn": "postgresql://u:p@db:5432/daybook" },
	  "poller": { "concurrency": 8 }
	}`
	path := filepath.Join(t.TempDir(), "service.json")
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Defaults()
	want.Bucket = "acme-workspaces"
	want.Athena.Database = "analytics"
	want.Athena.MaxAttempts = 40
	want.Registry = Registry{Kind: "postgres", DSN: "postgresql://u:p@db:5432/daybook"}
	want.Poller.Concurrency = 8
	applyTestEnv(&want)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load (-want +got):\n%s", diff)
	}
}

// applyTestEnv mirrors what Load does with the real environment so the
// comparison above holds whatever variables the test runner exports.
func applyTestEnv(s *Service) {
	_ = ApplyEnv(s, os.LookupEnv)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"WORKSPACE_BUCKET":   "env-bucket",
		"ATHENA_DATABASE":    "env_db",
		"AWS_REGION":         "eu-west-1",
		"REGISTRY_KIND":      "dynamo",
		"REGISTRY_DSN":       "",
		"METRICS_BACKEND":    "datadog",
		"DD_AGENT_ADDR":      "127.0.0.1:8125",
		"LISTEN_ADDR":        ":9090",
		"POLL_SCHEDULE":      "*/5 * * * *",
		"POLL_CONCURRENCY":   "2",
		"ALLOW_EMPTY_FIELDS": "true",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	s := Defaults()
	s.Registry.DSN = "kept"
	if err := ApplyEnv(&s, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if s.Bucket != "env-bucket" || s.Athena.Database != "env_db" || s.Region != "eu-west-1" {
		t.Fatalf("string overrides not applied: %+v", s)
	}
	if s.Registry.Kind != "dynamo" || s.Registry.DSN != "kept" {
		t.Fatalf("registry = %+v; empty env values must not override", s.Registry)
	}
	if s.Metrics.Backend != "datadog" || s.Metrics.DatadogAddr != "127.0.0.1:8125" {
		t.Fatalf("metrics = %+v", s.Metrics)
	}
	if s.Server.ListenAddr != ":9090" || s.Poller.Schedule != "*/5 * * * *" || s.Poller.Concurrency != 2 {
		t.Fatalf("server/poller = %+v %+v", s.Server, s.Poller)
	}
	if !s.Validation.AllowEmptyFields {
		t.Fatalf("ALLOW_EMPTY_FIELDS not applied")
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Parallel()

	s := Defaults()
	err := ApplyEnv(&s, func(k string) (string, bool) {
		if k == "POLL_CONCURRENCY" {
			return "many", true
		}
		return "", false
	})
	if err == nil {
		t.Fatalf("expected error for non-numeric POLL_CONCURRENCY")
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	d := Defaults()
	if got := d.Athena.PollInterval(); got != 500*time.Millisecond {
		t.Fatalf("PollInterval = %v", got)
	}
	if got := d.Athena.MaxPollInterval(); got != 5*time.Second {
		t.Fatalf("MaxPollInterval = %v", got)
	}
	if got := d.Athena.Timeout(); got != 10*time.Minute {
		t.Fatalf("Timeout = %v", got)
	}
	if got := d.Server.URLTTL(); got != time.Hour {
		t.Fatalf("URLTTL = %v", got)
	}
}

// -----------------------------------------------------------------------------
// Options helper tests (hermetic).
// -----------------------------------------------------------------------------
//
// These tests validate minimal, deliberate coercion behavior and defaults. This
// protects against accidental changes in helper semantics that would silently
// alter connector behavior across the application.

func TestOptions_String_Bool_Int_Rune_DefaultsAndCoercion(t *testing.T) {
	t.Parallel()

	o := Options{
		"s": "hello",
		"b": true,
		"i": float64(42), // encoding/json decodes numbers as float64
		"r": ",",         // first rune will be used
	}

	// String
	if got := o.String("s", "def"); got != "hello" {
		t.Fatalf("String(s) = %q, want hello", got)
	}
	if got := o.String("missing", "def"); got != "def" {
		t.Fatalf("String(missing) = %q, want def", got)
	}

	// Bool
	if got := o.Bool("b", false); got != true {
		t.Fatalf("Bool(b) = %v, want true", got)
	}
	if got := o.Bool("missing", true); got != true {
		t.Fatalf("Bool(missing) = %v, want true", got)
	}

	// Int (float64 → int)
	if got := o.Int("i", 0); got != 42 {
		t.Fatalf("Int(i) = %d, want 42", got)
	}
	if got := o.Int("missing", 7); got != 7 {
		t.Fatalf("Int(missing) = %d, want 7", got)
	}

	// Rune (first rune from string)
	if got := o.Rune("r", ';'); got != ',' {
		t.Fatalf("Rune(r) = %q, want ','", got)
	}
	if got := o.Rune("missing", 'X'); got != 'X' {
		t.Fatalf("Rune(missing) = %q, want 'X'", got)
	}

	// Validate that Rune picks the FIRST rune (not byte) for multi-byte char.
	o["r2"] = "ž" // multi-byte UTF-8 rune
	r := o.Rune("r2", 'x')
	if r == 0 || !utf8.ValidRune(r) {
		t.Fatalf("Rune(r2) = %#U, want valid rune", r)
	}
	if string(r) != "ž" {
		t.Fatalf("Rune(r2) = %#U (%q), want ž", r, string(r))
	}
}

func TestOptions_StringMap_StringSlice_Any(t *testing.T) {
	t.Parallel()

	o := Options{
		"m": map[string]any{"A": "a", "B": "b", "X": 1}, // non-string value "X" must be ignored
		"s1": []any{
			"alpha", "beta", 3, // ints ignored
		},
		"s2": []string{"gamma", "delta"},
		"nested": map[string]any{
			"k": "v",
		},
	}

	// StringMap should include only string values and skip non-strings.
	sm := o.StringMap("m")
	if !reflect.DeepEqual(sm, map[string]string{"A": "a", "B": "b"}) {
		t.Fatalf("StringMap(m) = %#v, want {A:a B:b}", sm)
	}
	// Missing key → empty map (not nil).
	sm2 := o.StringMap("missing")
	if sm2 == nil || len(sm2) != 0 {
		t.Fatalf("StringMap(missing) = %#v, want empty map", sm2)
	}

	// StringSlice supports []any with strings and filters non-strings.
	ss1 := o.StringSlice("s1")
	if !reflect.DeepEqual(ss1, []string{"alpha", "beta"}) {
		t.Fatalf("StringSlice(s1) = %#v, want [alpha beta]", ss1)
	}
	// And the native []string case.
	ss2 := o.StringSlice("s2")
	if !reflect.DeepEqual(ss2, []string{"gamma", "delta"}) {
		t.Fatalf("StringSlice(s2) = %#v, want [gamma delta]", ss2)
	}
	// Missing key → nil (intentional to distinguish unspecified from empty).
	if got := o.StringSlice("missing"); got != nil {
		t.Fatalf("StringSlice(missing) = %#v, want nil", got)
	}

	// Any returns raw nested values for callers to unmarshal later.
	anyv := o.Any("nested")
	m, ok := anyv.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Fatalf("Any(nested) = %#v, want map with k=v", anyv)
	}
	if o.Any("missing") != nil {
		t.Fatalf("Any(missing) should be nil when key absent")
	}
}

// -----------------------------------------------------------------------------
// Options.UnmarshalJSON behavior tests
// -----------------------------------------------------------------------------
//
// These tests ensure that decoding Options from JSON yields a non-nil, empty
// map when the field is missing or explicitly null. This avoids nil-checks at
// call sites and is a deliberate design choice for simplicity.

func TestOptions_UnmarshalJSON_NullYieldsEmptyMap(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Opts Options `json:"options"`
	}

	// options is explicitly null → non-nil, empty Options.
	const jsNull = `{"options": null}`
	var w wrapper
	if err := json.Unmarshal([]byte(jsNull), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts == nil || len(w.Opts) != 0 {
		t.Fatalf("Opts after null unmarshal = %#v, want non-nil empty map", w.Opts)
	}
}

func TestOptions_UnmarshalJSON_MissingYieldsEmptyMap(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Opts Options `json:"options"`
	}

	// options is missing entirely → non-nil, empty Options.
	const jsMissing = `{}`
	var w wrapper
	if err := json.Unmarshal([]byte(jsMissing), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts == nil || len(w.Opts) != 0 {
		t.Fatalf("Opts after missing unmarshal = %#v, want non-nil empty map", w.Opts)
	}
}

func TestOptions_UnmarshalJSON_ObjectDecodesAsMap(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Opts Options `json:"options"`
	}

	const jsObj = `{"options": {"a":"x","b":true,"n": 3}}`
	var w wrapper
	if err := json.Unmarshal([]byte(jsObj), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if w.Opts.String("a", "") != "x" {
		t.Fatalf("Opts.String(a) = %q, want x", w.Opts.String("a", ""))
	}
	if w.Opts.Bool("b", false) != true {
		t.Fatalf("Opts.Bool(b) = %v, want true", w.Opts.Bool("b", false))
	}
	if w.Opts.Int("n", 0) != 3 {
		t.Fatalf("Opts.Int(n) = %d, want 3", w.Opts.Int("n", 0))
	}
}


func TestOptions_Transforms(t *testing.T) {
	t.Parallel()

	const js = `{"options": {"transforms": [
	  {"kind": "trim"},
	  {"kind": "dedup", "options": {"keys": ["sku"], "policy": "keep-first"}}
	]}}`
	var w struct {
		Opts Options `json:"options"`
	}
	if err := json.Unmarshal([]byte(js), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ts, err := w.Opts.Transforms()
	if err != nil {
		t.Fatalf("Transforms: %v", err)
	}
	if len(ts) != 2 || ts[0].Kind != "trim" || ts[1].Kind != "dedup" {
		t.Fatalf("Transforms = %#v", ts)
	}
	if ts[0].Options == nil {
		t.Fatalf("missing options should decode to an empty map")
	}
	if got := ts[1].Options.StringSlice("keys"); !reflect.DeepEqual(got, []string{"sku"}) {
		t.Fatalf("keys = %#v", got)
	}

	if ts, err := (Options{}).Transforms(); err != nil || ts != nil {
		t.Fatalf("empty options: %v %v", ts, err)
	}
	if _, err := (Options{"transforms": "trim"}).Transforms(); err == nil {
		t.Fatalf("expected error for non-list transforms")
	}
}

func TestOptions_IntAcceptsStrings(t *testing.T) {
	t.Parallel()

	o := Options{"port": "3306", "n": json.Number("12"), "bad": "x"}
	if got := o.Int("port", 0); got != 3306 {
		t.Fatalf("Int(port) = %d", got)
	}
	if got := o.Int("n", 0); got != 12 {
		t.Fatalf("Int(n) = %d", got)
	}
	if got := o.Int("bad", 5); got != 5 {
		t.Fatalf("Int(bad) = %d", got)
	}
}
