// Package storage defines the load ledger: a small SQL table recording every
// object a DAG wrote to the curated bucket, so operators can audit what was
// loaded and when.
//
// Backends live in subpackages (sqlite, postgres, mssql, mysql) and register a
// Factory from init. Callers obtain a Repository through New without
// importing a backend directly; importing storage/all wires every backend.
//
//	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "ledger.db", Table: "load_ledger"})
//	if err != nil { ... }
//	defer repo.Close()
//	if err := repo.EnsureTable(ctx); err != nil { ... }
package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one ledger row.
type Entry struct {
	DAG       string
	ObjectKey string
	RecordID  string
	Rows      int64
	LoadedAt  time.Time
}

// Columns is the ledger column order used by every backend.
var Columns = []string{"dag", "object_key", "record_id", "row_count", "loaded_at"}

// KeyColumns identify a ledger row; re-recording the same key replaces it.
var KeyColumns = []string{"dag", "object_key"}

// Values returns e in Columns order. LoadedAt is normalized to UTC.
func (e Entry) Values() []any {
	return []any{e.DAG, e.ObjectKey, e.RecordID, e.Rows, e.LoadedAt.UTC()}
}

// Repository is the ledger contract every backend implements.
type Repository interface {
	// EnsureTable creates the ledger table when it does not exist.
	EnsureTable(ctx context.Context) error
	// Record upserts entries keyed by (dag, object_key) and returns how many
	// were written.
	Record(ctx context.Context, entries []Entry) (int64, error)
	// Loaded returns the entries for dag ordered by object_key.
	Loaded(ctx context.Context, dag string) ([]Entry, error)
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. It is typically
// called from backend packages' init functions.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the Repository registered for cfg.Kind. Kind "none" (or empty)
// returns a Nop repository.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" || cfg.Kind == "none" {
		return Nop{}, nil
	}
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported ledger.kind=%s", cfg.Kind)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("storage: %s: DSN must not be empty", cfg.Kind)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("storage: %s: table must not be empty", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Nop discards entries.
type Nop struct{}

func (Nop) EnsureTable(context.Context) error { return nil }
func (Nop) Record(_ context.Context, entries []Entry) (int64, error) {
	return int64(len(entries)), nil
}
func (Nop) Loaded(context.Context, string) ([]Entry, error) { return nil, nil }
func (Nop) Close()                                          {}

// Dedup keeps the last entry per (dag, object_key), preserving first-seen
// order. Backends that upsert in one statement require unique keys.
func Dedup(entries []Entry) []Entry {
	type key struct{ dag, obj string }
	idx := make(map[key]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := key{e.DAG, e.ObjectKey}
		if i, ok := idx[k]; ok {
			out[i] = e
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

// SortEntries orders entries by object_key.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.ObjectKey, b.ObjectKey) })
}

// SplitFQN splits "schema.table" into its parts, dropping empty segments.
func SplitFQN(fqn string) []string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
