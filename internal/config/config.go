// Package config defines the configuration model for the character
// pipeline. A single Pipeline value is loaded once at startup (JSON or
// YAML), validated with ValidatePipeline, and passed explicitly to every
// component that needs it.
//
// Design goals:
//
//  1. Explicit: nothing is read from the environment behind the caller's
//     back; the file is the whole configuration.
//  2. Clarity: Go field names mirror the keys used in configs/*.json.
//  3. Per-DAG overrides are a free-form Options bag restricted to a fixed
//     set of keys and checked by ValidatePipeline.
//
// Example (trimmed):
//
//	{
//	  "tmp_dir": "/tmp/etl/",
//	  "api":     { "base_url": "https://api.disneyapi.dev", "timeout": "30s" },
//	  "storage": { "kind": "s3", "region": "us-east-1" },
//	  "buckets": { "raw": "raw", "curated": "curated" },
//	  "notify":  { "kind": "slack", "webhook_url": "https://hooks.slack.com/..." },
//	  "dags": {
//	    "disney_api_raw_dag": { "scheduler": "*/5 * * * *", "limit": 500, "flags": ["bypass-alert"] }
//	  }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level configuration object.
type Pipeline struct {
	// TmpDir is the scratch directory prefix. Scratch files are named
	// {TmpDir}{dag name}{ext}, so a trailing separator is added when missing.
	TmpDir string `json:"tmp_dir" yaml:"tmp_dir"`

	// LogLevel is debug, info, warn or error.
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogConsole bool   `json:"log_console" yaml:"log_console"`

	API     API     `json:"api" yaml:"api"`
	Storage Storage `json:"storage" yaml:"storage"`
	Buckets Buckets `json:"buckets" yaml:"buckets"`
	Notify  Notify  `json:"notify" yaml:"notify"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	Ledger  Ledger  `json:"ledger" yaml:"ledger"`

	// Workers bounds how many characters the curated load transforms and
	// uploads concurrently.
	Workers int `json:"workers" yaml:"workers"`

	// DAGs holds per-DAG overrides keyed by DAG name. Recognized keys:
	// scheduler, limit, chunk_size, tags, flags.
	DAGs map[string]Options `json:"dags" yaml:"dags"`
}

// API configures the character API client.
type API struct {
	BaseURL            string   `json:"base_url" yaml:"base_url"`
	Timeout            Duration `json:"timeout" yaml:"timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	UserAgent          string   `json:"user_agent" yaml:"user_agent"`
}

// Storage selects the object store backend.
type Storage struct {
	// Kind is "s3" or "local".
	Kind string `json:"kind" yaml:"kind"`

	// S3 settings.
	Region         string `json:"region" yaml:"region"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `json:"force_path_style" yaml:"force_path_style"`

	// Root is the directory holding one subdirectory per bucket for "local".
	Root string `json:"root" yaml:"root"`
}

// Buckets names the raw and curated buckets.
type Buckets struct {
	Raw     string `json:"raw" yaml:"raw"`
	Curated string `json:"curated" yaml:"curated"`
}

// Notify configures run notifications.
type Notify struct {
	// Kind is "slack" or "none".
	Kind       string `json:"kind" yaml:"kind"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Channel    string `json:"channel" yaml:"channel"`
	Username   string `json:"username" yaml:"username"`
	IconEmoji  string `json:"icon_emoji" yaml:"icon_emoji"`
	// LogBaseURL prefixes the log link sent with failure alerts.
	LogBaseURL string `json:"log_base_url" yaml:"log_base_url"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "pushgateway", "datadog" or "none".
	Backend string `json:"backend" yaml:"backend"`
	// URL is the Pushgateway URL.
	URL string `json:"url" yaml:"url"`
	// Addr is the DogStatsD address (host:port).
	Addr string `json:"addr" yaml:"addr"`
	// Job labels pushed metrics.
	Job string `json:"job" yaml:"job"`
}

// Ledger configures the optional SQL load ledger.
type Ledger struct {
	// Kind is "sqlite", "postgres", "mssql", "mysql" or "none".
	Kind  string `json:"kind" yaml:"kind"`
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`
}

// Duration is a time.Duration written as a Go duration string ("30s") or
// as a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(v any) (Duration, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		pd, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		return Duration(pd), nil
	case float64:
		return Duration(x * float64(time.Second)), nil
	case int:
		return Duration(time.Duration(x) * time.Second), nil
	default:
		return 0, fmt.Errorf("config: invalid duration %v", v)
	}
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	pd, err := parseDuration(v)
	if err != nil {
		return err
	}
	*d = pd
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	pd, err := parseDuration(v)
	if err != nil {
		return err
	}
	*d = pd
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
