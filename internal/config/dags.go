package config

import (
	"slices"
	"time"
)

// Recognized per-DAG parameter keys.
const (
	ParamScheduler = "scheduler"
	ParamLimit     = "limit"
	ParamChunkSize = "chunk_size"
	ParamTags      = "tags"
	ParamFlags     = "flags"
)

// DAGParamKeys lists every recognized per-DAG key.
var DAGParamKeys = []string{ParamScheduler, ParamLimit, ParamChunkSize, ParamTags, ParamFlags}

// Run flags.
const (
	// FlagBypassAlert suppresses the failure notification.
	FlagBypassAlert = "bypass-alert"
	// FlagNoTimeout removes the run deadline.
	FlagNoTimeout = "no-timeout"
	// FlagAlertSuccess sends an info notification when a run succeeds.
	FlagAlertSuccess = "alert-success"
)

// KnownFlags lists every recognized flag.
var KnownFlags = []string{FlagBypassAlert, FlagNoTimeout, FlagAlertSuccess}

// DAG defaults used when neither the module nor the config set a value.
const (
	ScheduleOnce      = "@once"
	DefaultLimit      = 10000
	DefaultChunkSize  = 20000
	DefaultRunTimeout = time.Hour
)

// DefaultDAGParams returns the built-in parameters every DAG starts from.
func DefaultDAGParams() DAGParams {
	return DAGParams{Scheduler: ScheduleOnce, Limit: DefaultLimit, ChunkSize: DefaultChunkSize}
}

// DAGParams are the effective parameters of one DAG.
type DAGParams struct {
	Scheduler string
	Limit     int
	ChunkSize int
	Tags      []string
	Flags     []string
}

// HasFlag reports whether flag is set.
func (d DAGParams) HasFlag(flag string) bool { return slices.Contains(d.Flags, flag) }

// DAGParams overlays the configured overrides for name onto def. Tags are
// appended to def.Tags; every other key replaces the default.
func (p Pipeline) DAGParams(name string, def DAGParams) DAGParams {
	out := DAGParams{
		Scheduler: def.Scheduler,
		Limit:     def.Limit,
		ChunkSize: def.ChunkSize,
		Tags:      slices.Clone(def.Tags),
		Flags:     slices.Clone(def.Flags),
	}
	o, ok := p.DAGs[name]
	if !ok {
		return out
	}
	out.Scheduler = o.String(ParamScheduler, out.Scheduler)
	out.Limit = o.Int(ParamLimit, out.Limit)
	out.ChunkSize = o.Int(ParamChunkSize, out.ChunkSize)
	out.Tags = append(out.Tags, o.StringSlice(ParamTags)...)
	if o.Has(ParamFlags) {
		out.Flags = o.StringSlice(ParamFlags)
	}
	return out
}
