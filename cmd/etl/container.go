// Package main wires the Disney ETL DAGs end to end. This file builds the
// runtime container (object stores, ledger, notifier, API client, DAGs); it
// depends only on interfaces and never imports database drivers directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"disneyetl/internal/config"
	"disneyetl/internal/dag"
	"disneyetl/internal/datasource/disneyapi"
	"disneyetl/internal/datasource/httpds"
	"disneyetl/internal/logging"
	"disneyetl/internal/module"
	"disneyetl/internal/module/disney"
	"disneyetl/internal/notify"
	"disneyetl/internal/objectstore"
	"disneyetl/internal/objectstore/localstore"
	"disneyetl/internal/objectstore/s3store"
	"disneyetl/internal/storage"
)

// DAGAll selects every DAG.
const DAGAll = "all"

// container holds everything a run needs. Close releases the ledger.
type container struct {
	cfg    config.Pipeline
	log    zerolog.Logger
	raw    objectstore.Store
	cur    objectstore.Store
	ledger storage.Repository
	notify notify.Notifier
	// dags are in run order: raw before curated.
	dags []*dag.DAG
}

func newContainer(ctx context.Context, cfg config.Pipeline, logger zerolog.Logger) (*container, error) {
	c := &container{cfg: cfg, log: logger, notify: newNotifier(cfg)}

	var err error
	if c.raw, err = openStore(ctx, cfg, cfg.Buckets.Raw, logger); err != nil {
		return nil, err
	}
	if c.cur, err = openStore(ctx, cfg, cfg.Buckets.Curated, logger); err != nil {
		return nil, err
	}
	if c.ledger, err = initLedger(ctx, cfg); err != nil {
		return nil, err
	}

	modLog := logging.Component(logger, "module")
	api := disneyapi.New(newHTTPClient(cfg, logger), cfg.API.BaseURL, logging.Component(logger, "disneyapi"))
	raw := disney.NewRaw(cfg.TmpDir, api, c.raw, modLog)
	curated, err := disney.NewCurated(cfg.TmpDir, c.raw, c.cur, c.ledger, cfg.Workers, modLog)
	if err != nil {
		c.Close()
		return nil, err
	}

	for _, m := range []module.Module{raw, curated} {
		d, err := dag.New(m, dag.Options{
			Params:     cfg.DAGParams(m.DAGName(), disney.DefaultParams()),
			Notifier:   c.notify,
			LogBaseURL: cfg.Notify.LogBaseURL,
			Logger:     logging.Component(logger, "dag"),
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.dags = append(c.dags, d)
	}
	return c, nil
}

// Close releases the ledger connection.
func (c *container) Close() {
	if c.ledger != nil {
		c.ledger.Close()
	}
}

// selectDAGs returns the DAGs matching name (a DAG name or DAGAll), in run
// order.
func selectDAGs(dags []*dag.DAG, name string) ([]*dag.DAG, error) {
	if name == "" || name == DAGAll {
		return dags, nil
	}
	var names []string
	for _, d := range dags {
		if d.Name() == name {
			return []*dag.DAG{d}, nil
		}
		names = append(names, d.Name())
	}
	return nil, fmt.Errorf("unknown dag %q (have %s, %s)", name, strings.Join(names, ", "), DAGAll)
}

// runDAGs runs each DAG once, in order, stopping at the first failure.
func runDAGs(ctx context.Context, logger zerolog.Logger, dags []*dag.DAG) error {
	for _, d := range dags {
		res, err := d.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info().
			Str("dag", res.DAG).
			Strs("tasks", res.Done).
			Dur("took", res.Duration).
			Msg("dag finished")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Pipeline, bucket string, logger zerolog.Logger) (objectstore.Store, error) {
	switch cfg.Storage.Kind {
	case "local":
		s, err := localstore.New(cfg.Storage.Root, bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:         bucket,
			Region:         cfg.Storage.Region,
			Endpoint:       cfg.Storage.Endpoint,
			ForcePathStyle: cfg.Storage.ForcePathStyle,
		}, logging.Component(logger, "s3store"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Storage.Kind)
	}
}

// initLedger opens the configured ledger and makes sure its table exists.
func initLedger(ctx context.Context, cfg config.Pipeline) (storage.Repository, error) {
	repo, err := storage.New(ctx, storage.Config{
		Kind:  cfg.Ledger.Kind,
		DSN:   cfg.Ledger.DSN,
		Table: cfg.Ledger.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	if err := repo.EnsureTable(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	return repo, nil
}

func newNotifier(cfg config.Pipeline) notify.Notifier {
	if cfg.Notify.Kind != "slack" {
		return notify.Nop{}
	}
	return notify.NewSlackClient(notify.SlackConfig{
		WebhookURL: cfg.Notify.WebhookURL,
		Channel:    cfg.Notify.Channel,
		Username:   cfg.Notify.Username,
		IconEmoji:  cfg.Notify.IconEmoji,
	}, cfg.API.Timeout.Std())
}

func newHTTPClient(cfg config.Pipeline, logger zerolog.Logger) *httpds.Client {
	h := http.Header{}
	if ua := cfg.API.UserAgent; ua != "" {
		h.Set("User-Agent", ua)
	}
	return httpds.NewClient(httpds.Config{
		Timeout:            cfg.API.Timeout.Std(),
		MaxRetries:         cfg.API.MaxRetries,
		InsecureSkipVerify: cfg.API.InsecureSkipVerify,
		BaseHeaders:        h,
		Logger:             logging.Component(logger, "httpds"),
	})
}

// pickString returns the first non-empty of flag, env var and def.
func pickString(flagVal, envKey, def string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, dag.ErrRunning):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
