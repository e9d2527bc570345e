package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrWong99/phoneval/internal/config"
	"github.com/MrWong99/phoneval/internal/dataset"
	"github.com/MrWong99/phoneval/internal/eval"
	"github.com/MrWong99/phoneval/internal/health"
	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/internal/report"
	"github.com/MrWong99/phoneval/internal/store"
)

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("batch", stderr)
	manifestPath := fs.String("manifest", "", "YAML manifest of samples to score")
	configPath := fs.String("config", "", "YAML configuration (providers, store, telemetry)")
	metrics := fs.String("metrics", "", "comma-separated metrics, overriding eval.metrics")
	concurrency := fs.Int("concurrency", 0, "samples scored in parallel, overriding eval.concurrency")
	asJSON := fs.Bool("json", false, "print the full report as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *manifestPath == "" {
		return fail(stderr, "batch", errors.New("-manifest is required"))
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		return fail(stderr, "batch", err)
	}
	kindNames := cfg.Eval.Metrics
	if *metrics != "" {
		kindNames = strings.Split(*metrics, ",")
	}
	kinds, err := parseKinds(kindNames)
	if err != nil {
		return fail(stderr, "batch", err)
	}
	if *concurrency > 0 {
		cfg.Eval.Concurrency = *concurrency
	}

	m, err := dataset.Load(*manifestPath)
	if err != nil {
		return fail(stderr, "batch", err)
	}
	lex, err := loadLexicon(cfg.Lexicon)
	if err != nil {
		return fail(stderr, "batch", err)
	}

	var (
		st       store.Store
		checkers []health.Checker
	)
	if cfg.Store.Driver != "" {
		var closeStore func()
		st, closeStore, err = openStore(ctx, cfg.Store)
		if err != nil {
			return fail(stderr, "batch", err)
		}
		defer closeStore()
		if p, ok := st.(health.Pinger); ok {
			checkers = append(checkers, health.Ping("store", p))
		}
	}

	shutdown, err := setupTelemetry(ctx, cfg, checkers...)
	if err != nil {
		return fail(stderr, "batch", err)
	}
	defer shutdown()

	opts := []eval.Option{
		eval.WithKinds(kinds...),
		eval.WithLexicon(lex),
		eval.WithConcurrency(cfg.Eval.Concurrency),
		eval.WithSampleRate(cfg.Eval.SampleRate),
		eval.WithLanguage(cfg.Eval.Language),
		eval.WithMetrics(observe.DefaultMetrics()),
		eval.WithLogger(slog.Default()),
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	transcriber, err := reg.BuildSTT(cfg.Providers, fallbackConfig())
	if err != nil {
		return fail(stderr, "batch", fmt.Errorf("create stt provider: %w", err))
	}
	if transcriber != nil {
		opts = append(opts, eval.WithTranscriber(transcriber, cfg.Providers.STT.Name))
		slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	}

	if st != nil {
		opts = append(opts, eval.WithStore(st))
	}

	rep, runErr := eval.New(opts...).Run(ctx, *manifestPath, m)
	if rep != nil {
		if *asJSON {
			if err := report.JSON(stdout, rep); err != nil {
				return fail(stderr, "batch", err)
			}
		} else {
			fmt.Fprint(stdout, report.Batch(rep))
		}
	}
	if runErr != nil {
		return fail(stderr, "batch", runErr)
	}
	return 0
}

func runRuns(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("runs", stderr)
	configPath := fs.String("config", "", "YAML configuration with a store section")
	limit := fs.Int("limit", 20, "maximum number of runs to list; 0 lists all")
	asJSON := fs.Bool("json", false, "print runs as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		return fail(stderr, "runs", err)
	}
	if cfg.Store.Driver == "" {
		return fail(stderr, "runs", errors.New("no store configured; set store.driver and store.dsn"))
	}
	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fail(stderr, "runs", err)
	}
	defer closeStore()

	runs, err := st.ListRuns(ctx, *limit)
	if err != nil {
		return fail(stderr, "runs", err)
	}
	if *asJSON {
		if runs == nil {
			runs = []store.Run{}
		}
		if err := report.JSON(stdout, runs); err != nil {
			return fail(stderr, "runs", err)
		}
		return 0
	}
	fmt.Fprint(stdout, report.Runs(runs))
	return 0
}

// openStore connects to the configured store and applies its schema.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	var (
		st      store.Store
		closeFn func()
	)
	switch cfg.Driver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st, closeFn = store.NewPostgresStore(pool), pool.Close
	case config.StoreSQLite:
		s, err := store.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		st = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				slog.Warn("close store", "err", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	slog.Debug("store ready", "driver", cfg.Driver)
	return st, closeFn, nil
}

// setupTelemetry installs the OpenTelemetry providers and, when configured,
// serves /metrics, /healthz and /readyz for the lifetime of the command. The
// returned function stops both.
func setupTelemetry(ctx context.Context, cfg *config.Config, checkers ...health.Checker) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{Registerer: reg})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var srv *http.Server
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		srv = observe.NewMetricsServer(addr, reg, observe.DefaultMetrics(), health.New(checkers...))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "addr", addr, "err", err)
			}
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics listener shutdown", "err", err)
			}
		}
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}, nil
}
