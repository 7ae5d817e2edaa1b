package config

// This file adds a lightweight validator for Pipeline values. It performs
// static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in the CLI or tests.

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "dags.disney_api_raw_dag.flags[1]"). Message is human-readable.
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
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate p. Callers decide whether warnings are fatal.
//
// Example:
//
//	p, err := config.Load("configs/pipeline.json")
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.TmpDir) == "" {
		issues = append(issues, errorAt("tmp_dir", "tmp_dir must not be empty"))
	}
	issues = append(issues, validateAPI(p.API)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateBuckets(p.Buckets)...)
	issues = append(issues, validateNotify(p.Notify)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateLedger(p.Ledger)...)
	if p.Workers < 0 {
		issues = append(issues, errorAt("workers", "workers must be >= 0"))
	}

	names := make([]string, 0, len(p.DAGs))
	for name := range p.DAGs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		issues = append(issues, ValidateDAGParams(name, p.DAGs[name])...)
	}
	return issues
}

func errorAt(path, msg string) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: msg}
}

func warnAt(path, msg string) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: msg}
}

func validateAPI(a API) []Issue {
	var issues []Issue
	if u, err := url.Parse(a.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, errorAt("api.base_url", fmt.Sprintf("invalid base url %q", a.BaseURL)))
	}
	if a.MaxRetries < 0 {
		issues = append(issues, errorAt("api.max_retries", "max_retries must be >= 0"))
	}
	if a.InsecureSkipVerify {
		issues = append(issues, warnAt("api.insecure_skip_verify", "TLS verification is disabled"))
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	switch s.Kind {
	case "s3":
		if s.Endpoint != "" {
			if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				return []Issue{errorAt("storage.endpoint", fmt.Sprintf("invalid endpoint %q", s.Endpoint))}
			}
		}
		if s.Region == "" && s.Endpoint == "" {
			return []Issue{warnAt("storage.region", "no region set; relying on the AWS default chain")}
		}
	case "local":
		if strings.TrimSpace(s.Root) == "" {
			return []Issue{errorAt("storage.root", "local storage requires a root directory")}
		}
	case "":
		return []Issue{errorAt("storage.kind", "storage.kind must not be empty")}
	default:
		return []Issue{errorAt("storage.kind", fmt.Sprintf("unsupported storage kind %q (want s3 or local)", s.Kind))}
	}
	return nil
}

func validateBuckets(b Buckets) []Issue {
	var issues []Issue
	if b.Raw == "" {
		issues = append(issues, errorAt("buckets.raw", "raw bucket must not be empty"))
	}
	if b.Curated == "" {
		issues = append(issues, errorAt("buckets.curated", "curated bucket must not be empty"))
	}
	if b.Raw != "" && b.Raw == b.Curated {
		issues = append(issues, warnAt("buckets", "raw and curated share one bucket"))
	}
	return issues
}

func validateNotify(n Notify) []Issue {
	switch n.Kind {
	case "none":
		return nil
	case "slack":
		if n.WebhookURL == "" {
			return []Issue{errorAt("notify.webhook_url", "slack notifications require webhook_url")}
		}
		if u, err := url.Parse(n.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			return []Issue{errorAt("notify.webhook_url", fmt.Sprintf("invalid webhook url %q", n.WebhookURL))}
		}
		return nil
	default:
		return []Issue{errorAt("notify.kind", fmt.Sprintf("unsupported notify kind %q (want slack or none)", n.Kind))}
	}
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "none":
		return nil
	case "pushgateway":
		if m.URL == "" {
			return []Issue{errorAt("metrics.url", "pushgateway backend requires url")}
		}
		return nil
	case "datadog":
		if m.Addr == "" {
			return []Issue{warnAt("metrics.addr", "datadog backend without addr; using the statsd default")}
		}
		return nil
	default:
		return []Issue{errorAt("metrics.backend", fmt.Sprintf("unsupported metrics backend %q", m.Backend))}
	}
}

func validateLedger(l Ledger) []Issue {
	switch l.Kind {
	case "none":
		return nil
	case "sqlite", "postgres", "mssql", "mysql":
		var issues []Issue
		if strings.TrimSpace(l.DSN) == "" {
			issues = append(issues, errorAt("ledger.dsn", fmt.Sprintf("%s ledger requires dsn", l.Kind)))
		}
		if !validIdent(l.Table) {
			issues = append(issues, errorAt("ledger.table", fmt.Sprintf("invalid table name %q", l.Table)))
		}
		return issues
	default:
		return []Issue{errorAt("ledger.kind", fmt.Sprintf("unsupported ledger kind %q", l.Kind))}
	}
}

// validIdent accepts [schema.]name made of letters, digits and '_'.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

// ValidateScheduler accepts "@once" or any standard cron spec, including
// descriptors such as "@hourly" and "@every 5m".
func ValidateScheduler(s string) error {
	if s == ScheduleOnce {
		return nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return fmt.Errorf("invalid scheduler %q: %w", s, err)
	}
	return nil
}

// ValidateDAGParams checks one DAG's overrides.
func ValidateDAGParams(name string, o Options) []Issue {
	var issues []Issue
	base := "dags." + name

	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Contains(DAGParamKeys, k) {
			issues = append(issues, errorAt(base+"."+k,
				fmt.Sprintf("unknown parameter %q (want one of %s)", k, strings.Join(DAGParamKeys, ", "))))
		}
	}

	if o.Has(ParamScheduler) {
		s, ok := o[ParamScheduler].(string)
		switch {
		case !ok:
			issues = append(issues, errorAt(base+".scheduler", "scheduler must be a string"))
		default:
			if err := ValidateScheduler(s); err != nil {
				issues = append(issues, errorAt(base+".scheduler", err.Error()))
			}
		}
	}

	for _, k := range []string{ParamLimit, ParamChunkSize} {
		if !o.Has(k) {
			continue
		}
		n, ok := o.intValue(k)
		if !ok {
			issues = append(issues, errorAt(base+"."+k, k+" must be an integer"))
		} else if n <= 0 {
			issues = append(issues, errorAt(base+"."+k, k+" must be > 0"))
		}
	}

	for _, k := range []string{ParamTags, ParamFlags} {
		if !o.Has(k) {
			continue
		}
		if !isStringList(o[k]) {
			issues = append(issues, errorAt(base+"."+k, k+" must be a list of strings"))
		}
	}
	for i, f := range o.StringSlice(ParamFlags) {
		if !slices.Contains(KnownFlags, f) {
			issues = append(issues, errorAt(fmt.Sprintf("%s.flags[%d]", base, i),
				fmt.Sprintf("unknown flag %q (want one of %s)", f, strings.Join(KnownFlags, ", "))))
		}
	}
	return issues
}

func isStringList(v any) bool {
	switch vv := v.(type) {
	case []string:
		return true
	case []any:
		for _, x := range vv {
			if _, ok := x.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}
