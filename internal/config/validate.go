package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding worth surfacing that does not block
	// startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Service.
//
// Path is a dotted path into the config (e.g. "registry.kind",
// "metrics.pushgateway_url"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateService performs static validation of a Service. It does not
// mutate s. Callers decide whether warnings are fatal.
//
// Example:
//
//	s, err := config.Load(path)
//	if err != nil { ... }
//	for _, iss := range config.ValidateService(s) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateService(s Service) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Bucket) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "bucket",
			Message:  "bucket must not be empty; set it in the config file or WORKSPACE_BUCKET",
		})
	}
	if strings.TrimSpace(s.Region) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "region",
			Message:  "region is empty; the AWS SDK will fall back to its own resolution",
		})
	}
	issues = append(issues, validateAthena(s.Athena)...)
	issues = append(issues, validateRegistry(s.Registry)...)
	issues = append(issues, validateLock(s.Lock)...)
	issues = append(issues, validateMetrics(s.Metrics)...)
	issues = append(issues, validateServer(s.Server)...)
	issues = append(issues, validatePoller(s.Poller)...)

	return issues
}

func validateAthena(a Athena) []Issue {
	var issues []Issue

	if strings.TrimSpace(a.Database) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "athena.database",
			Message:  "athena.database must not be empty",
		})
	}
	if a.PollIntervalMS <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "athena.poll_interval_ms",
			Message:  fmt.Sprintf("poll_interval_ms=%d; the executor default will be used", a.PollIntervalMS),
		})
	}
	if a.MaxPollIntervalMS > 0 && a.MaxPollIntervalMS < a.PollIntervalMS {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "athena.max_poll_interval_ms",
			Message:  "max_poll_interval_ms must not be smaller than poll_interval_ms",
		})
	}
	if a.TimeoutSeconds <= 0 && a.MaxAttempts <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "athena.timeout_seconds",
			Message:  "neither timeout_seconds nor max_attempts is set; queries are bounded only by the caller",
		})
	}
	if a.TimeoutSeconds < 0 || a.MaxAttempts < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "athena",
			Message:  "timeout_seconds and max_attempts must not be negative",
		})
	}
	return issues
}

func validateRegistry(r Registry) []Issue {
	var issues []Issue

	if strings.TrimSpace(r.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "registry.kind",
			Message:  "registry.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"dynamo":   {},
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[r.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "registry.kind",
			Message:  fmt.Sprintf("unknown registry kind %q; ensure a matching backend is registered", r.Kind),
		})
	}
	if r.Kind != "dynamo" && strings.TrimSpace(r.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "registry.dsn",
			Message:  fmt.Sprintf("registry.dsn must not be empty for kind %q", r.Kind),
		})
	}
	return issues
}

func validateLock(l Lock) []Issue {
	switch l.Kind {
	case "", "local":
		return nil
	case "postgres":
		if strings.TrimSpace(l.DSN) == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "lock.dsn",
				Message:  "postgres lock requires a dsn",
			}}
		}
		return nil
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "lock.kind",
			Message:  fmt.Sprintf("unknown lock kind %q; want local or postgres", l.Kind),
		}}
	}
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prompush":
		if _, err := url.ParseRequestURI(m.PushgatewayURL); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  fmt.Sprintf("prompush backend requires a valid pushgateway_url: %v", err),
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "datadog_addr is empty; the client default agent address will be used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	if m.Backend != "" && m.Backend != "none" && strings.TrimSpace(m.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.job",
			Message:  "metrics.job must not be empty; it is used for metrics labeling",
		})
	}
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.ListenAddr) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "server.listen_addr",
			Message:  "listen_addr is empty; serve will not start an HTTP listener",
		})
	}
	if s.URLTTLSeconds <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "server.url_ttl_seconds",
			Message:  "url_ttl_seconds is not positive; the default of one hour applies",
		})
	} else if s.URLTTLSeconds > 7*24*3600 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "server.url_ttl_seconds",
			Message:  "url_ttl_seconds exceeds the seven day pre-sign limit",
		})
	}
	return issues
}

func validatePoller(p Poller) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Schedule) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "poller.schedule",
			Message:  "poller.schedule is empty; scheduled polling is disabled",
		})
	}
	if p.Concurrency < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "poller.concurrency",
			Message:  "concurrency must not be negative",
		})
	}
	if p.Attempts < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "poller.attempts",
			Message:  "attempts must not be negative",
		})
	}
	return issues
}
