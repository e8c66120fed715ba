package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validService() Service {
	s := Defaults()
	s.Bucket = "acme-workspaces"
	return s
}

/*
TestValidateService_ValidDefaults verifies that defaults plus a bucket produce
no issues.
*/
func TestValidateService_ValidDefaults(t *testing.T) {
	t.Parallel()

	if issues := ValidateService(validService()); len(issues) != 0 {
		t.Fatalf("expected no issues; got: %+v", issues)
	}
}

/*
TestValidateService_MissingBucket verifies the bucket is mandatory.
*/
func TestValidateService_MissingBucket(t *testing.T) {
	t.Parallel()

	issues := ValidateService(Defaults())
	if !hasIssue(t, issues, SeverityError, "bucket", "must not be empty") {
		t.Fatalf("expected bucket error; got: %+v", issues)
	}
	if !HasErrors(issues) {
		t.Fatalf("HasErrors = false")
	}
}

/*
TestValidateService_Cases exercises the per-section checks.
*/
func TestValidateService_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Service)
		sev    IssueSeverity
		path   string
		substr string
	}{
		{"empty database", func(s *Service) { s.Athena.Database = "" }, SeverityError, "athena.database", "must not be empty"},
		{"inverted poll bounds", func(s *Service) { s.Athena.MaxPollIntervalMS = 100 }, SeverityError, "athena.max_poll_interval_ms", "must not be smaller"},
		{"unbounded queries", func(s *Service) { s.Athena.TimeoutSeconds = 0 }, SeverityWarning, "athena.timeout_seconds", "bounded only by the caller"},
		{"unknown registry", func(s *Service) { s.Registry.Kind = "oracle" }, SeverityWarning, "registry.kind", "unknown registry kind"},
		{"registry dsn", func(s *Service) { s.Registry.DSN = "" }, SeverityError, "registry.dsn", "must not be empty"},
		{"postgres lock dsn", func(s *Service) { s.Lock.Kind = "postgres" }, SeverityError, "lock.dsn", "requires a dsn"},
		{"unknown lock", func(s *Service) { s.Lock.Kind = "redis" }, SeverityError, "lock.kind", "unknown lock kind"},
		{"pushgateway url", func(s *Service) { s.Metrics.Backend = "prompush" }, SeverityError, "metrics.pushgateway_url", "valid pushgateway_url"},
		{"unknown metrics", func(s *Service) { s.Metrics.Backend = "statsd" }, SeverityError, "metrics.backend", "unknown metrics backend"},
		{"metrics job", func(s *Service) {
			s.Metrics.Backend = "datadog"
			s.Metrics.DatadogAddr = "127.0.0.1:8125"
			s.Metrics.Job = ""
		}, SeverityError, "metrics.job", "must not be empty"},
		{"ttl limit", func(s *Service) { s.Server.URLTTLSeconds = 8 * 24 * 3600 }, SeverityError, "server.url_ttl_seconds", "seven day"},
		{"no schedule", func(s *Service) { s.Poller.Schedule = "" }, SeverityWarning, "poller.schedule", "disabled"},
		{"negative concurrency", func(s *Service) { s.Poller.Concurrency = -1 }, SeverityError, "poller.concurrency", "must not be negative"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := validService()
			tc.mutate(&s)
			issues := ValidateService(s)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.substr) {
				t.Fatalf("expected %s at %s containing %q; got: %+v", tc.sev, tc.path, tc.substr, issues)
			}
		})
	}
}

/*
TestValidateService_DynamoNeedsNoDSN verifies that the dynamo registry takes
its table from configuration rather than a DSN.
*/
func TestValidateService_DynamoNeedsNoDSN(t *testing.T) {
	t.Parallel()

	s := validService()
	s.Registry = Registry{Kind: "dynamo", Table: "DataSources"}
	if issues := ValidateService(s); HasErrors(issues) {
		t.Fatalf("unexpected errors: %+v", issues)
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "bucket", Message: "missing"}
	if got, want := iss.Error(), "error at bucket: missing"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
