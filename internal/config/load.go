package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads path, decodes it and applies defaults. It does not validate;
// call ValidatePipeline on the result.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	p, err := Decode(bytes.NewReader(b), FormatFromPath(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Decode reads one configuration document. Unknown keys are errors.
func Decode(r io.Reader, f Format) (Pipeline, error) {
	var p Pipeline
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && err != io.EOF {
			return Pipeline{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil && err != io.EOF {
			return Pipeline{}, fmt.Errorf("decode json: %w", err)
		}
	}
	p.ApplyDefaults()
	return p, nil
}

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseURL    = "https://api.disneyapi.dev"
	DefaultTimeout    = 30 * time.Second
	DefaultWorkers    = 4
	DefaultLedgerName = "load_ledger"
	DefaultJob        = "disneyetl"
)

// ApplyDefaults fills zero values.
func (p *Pipeline) ApplyDefaults() {
	if p.TmpDir == "" {
		p.TmpDir = os.TempDir()
	}
	if !strings.HasSuffix(p.TmpDir, string(os.PathSeparator)) && !strings.HasSuffix(p.TmpDir, "/") {
		p.TmpDir += string(os.PathSeparator)
	}
	if p.API.BaseURL == "" {
		p.API.BaseURL = DefaultBaseURL
	}
	if p.API.Timeout <= 0 {
		p.API.Timeout = Duration(DefaultTimeout)
	}
	if p.Storage.Kind == "" {
		p.Storage.Kind = "s3"
	}
	if p.Storage.Kind == "local" && p.Storage.Root == "" {
		p.Storage.Root = "data"
	}
	if p.Buckets.Raw == "" {
		p.Buckets.Raw = "raw"
	}
	if p.Buckets.Curated == "" {
		p.Buckets.Curated = "curated"
	}
	if p.Notify.Kind == "" {
		p.Notify.Kind = "none"
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
	if p.Metrics.Job == "" {
		p.Metrics.Job = DefaultJob
	}
	if p.Ledger.Kind == "" {
		p.Ledger.Kind = "none"
	}
	if p.Ledger.Table == "" {
		p.Ledger.Table = DefaultLedgerName
	}
	if p.Workers <= 0 {
		p.Workers = DefaultWorkers
	}
	if p.DAGs == nil {
		p.DAGs = map[string]Options{}
	}
}
