package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"disneyetl/internal/config"
	"disneyetl/internal/logging"
	"disneyetl/internal/metrics"
	"disneyetl/internal/metrics/datadog"
	"disneyetl/internal/metrics/prompush"

	// register all ledger backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "disneyetl/internal/storage/all"
)

// main is the entry point for the ETL binary. It loads the pipeline config,
// optionally initializes a metrics backend, and runs the selected DAGs once.
func main() {
	var (
		cfgPath           string
		dagName           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipeline.yaml", "pipeline config path (.json, .yaml or .yml)")
	flag.StringVar(&dagName, "dag", DAGAll, "DAG to run: disney_api_raw_dag, disney_api_curated_dag or all")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); overrides env METRICS_BACKEND and the config")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL and the config)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *verbose {
		p.LogLevel = "debug"
	}
	logger := logging.New(logging.Options{Level: p.LogLevel, Console: p.LogConsole})

	// Validate pipeline config.
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Error().Str("config", cfgPath).Msg("configuration is invalid")
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		logger.Info().Str("config", cfgPath).Msg("configuration is valid")
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush := setupMetrics(p, pickString(metricsBackendFlg, "METRICS_BACKEND", p.Metrics.Backend),
		pickString(pushGatewayURLFlg, "PUSHGATEWAY_URL", p.Metrics.URL), logger)

	code := run(ctx, p, dagName, logger)
	flush()
	stop()
	os.Exit(code)
}

func run(ctx context.Context, p config.Pipeline, dagName string, logger zerolog.Logger) int {
	start := time.Now()

	c, err := newContainer(ctx, p, logger)
	if err != nil {
		logger.Error().Err(err).Msg("setup failed")
		return 1
	}
	defer c.Close()

	dags, err := selectDAGs(c.dags, dagName)
	if err != nil {
		logger.Error().Err(err).Msg("bad -dag")
		return 2
	}

	logger.Debug().
		Str("storage", p.Storage.Kind).
		Str("raw_bucket", p.Buckets.Raw).
		Str("curated_bucket", p.Buckets.Curated).
		Str("ledger", p.Ledger.Kind).
		Int("workers", p.Workers).
		Msg("pipeline")

	if err := runDAGs(ctx, logger, dags); err != nil {
		logger.Error().Err(err).Msg("run failed")
		return exitCode(err)
	}
	logger.Info().Dur("took", time.Since(start).Truncate(time.Millisecond)).Msg("completed")
	return 0
}

// setupMetrics installs the selected backend and returns the flush to call
// before exit.
func setupMetrics(p config.Pipeline, backendName, gwURL string, logger zerolog.Logger) func() {
	log := logging.Component(logger, "metrics")
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("flush error")
		}
	}

	switch backendName {
	case "pushgateway":
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(p.Metrics.Job, gwURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to init prom push backend; using nop")
			return func() {}
		}
		log.Info().Str("url", gwURL).Str("job", p.Metrics.Job).Msg("pushgateway backend")
		metrics.SetBackend(b)
		return flush

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.Addr,
			Namespace:  p.Metrics.Job + ".",
			GlobalTags: []string{"service:" + p.Metrics.Job},
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to init datadog backend; using nop")
			return func() {}
		}
		log.Info().Str("addr", p.Metrics.Addr).Msg("datadog backend")
		metrics.SetBackend(b)
		return func() {
			flush()
			b.Close()
		}

	case "", "none":
		log.Debug().Str("backend", backendName).Msg("metrics disabled")
		return func() {}

	default:
		log.Warn().Str("backend", backendName).Msg("unknown backend; metrics disabled")
		return func() {}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
