// Package datadog implements a Datadog backend for the metrics package.
//
// It adapts metrics.Backend to DogStatsD using the official statsd client:
// metric labels become sorted "key:value" tags and counters and histograms
// are forwarded to a local or remote Datadog agent.
package datadog

import (
	"fmt"
	"sort"

	"disneyetl/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:8125"

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace is an optional prefix added to all metric names, e.g. "disneyetl.".
	Namespace string

	// GlobalTags are tags applied to all metrics emitted by this backend,
	// e.g. []string{"env:prod","service:disneyetl"}.
	GlobalTags []string
}

// Backend is a Datadog implementation of metrics.Backend.
type Backend struct {
	client *statsd.Client
}

// NewBackend constructs a Datadog metrics backend from cfg.
func NewBackend(cfg Config) (*Backend, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. DogStatsD counts are integers; fractional
// deltas are truncated.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram sends a Histogram sample.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush sends buffered and aggregated metrics without closing the client.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

// Close flushes and releases the client. The Backend is unusable afterwards.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

// labelsToTags converts labels into sorted "key:value" tags.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
