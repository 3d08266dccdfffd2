package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/asakaida/polyload/internal/infrastructure/cache"
	"github.com/asakaida/polyload/internal/infrastructure/config"
	"github.com/asakaida/polyload/internal/infrastructure/database"
	"github.com/asakaida/polyload/internal/infrastructure/logger"
	"github.com/asakaida/polyload/internal/infrastructure/metrics"
	"github.com/asakaida/polyload/internal/registry"
	"github.com/asakaida/polyload/internal/repositories"
	"github.com/asakaida/polyload/internal/repositories/cached"
	"github.com/asakaida/polyload/internal/repositories/postgres"
	"github.com/asakaida/polyload/internal/repositories/sqlite"
	"github.com/asakaida/polyload/internal/services"
	"github.com/asakaida/polyload/internal/services/eagerload"
	"github.com/asakaida/polyload/pkg/cache/memorycache"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type loadOptions struct {
	with        []string
	keys        []string
	schemaPath  string
	metricsAddr string
	compact     bool
}

func newLoadCmd() *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load <entity>",
		Short: "Load records with their relationships and print them as JSON",
		Long: `Load records of an entity from the configured database together with
the requested relationships, and print them as JSON.

Without --key every row of the entity is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("env")
			return runLoad(cmd, env, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.with, "with", nil, "Relationship path to load (repeatable, comma separated)")
	cmd.Flags().StringSliceVar(&opts.keys, "key", nil, "Primary key of a record to load (repeatable)")
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "Model file (default: SCHEMA_PATH)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics on this address until interrupted (default: METRICS_PORT)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "Print one JSON document without indentation")
	return cmd
}

func runLoad(cmd *cobra.Command, env, entity string, opts *loadOptions) error {
	if err := config.InitConfig(env); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("connected to database", zap.String("driver", db.Driver))

	store, closeStore, err := newRowStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeStore()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector()
	if c, ok := store.(*cached.RowStore); ok {
		collector.SetCache(c.Cache())
	}
	exporter := metrics.NewPrometheusExporter(collector, promRegistry)

	svc, err := services.NewModelService(registry.New(), store, log,
		eagerload.WithConcurrency(cfg.Loader.Concurrency),
		eagerload.WithObserver(metrics.Observer(collector, exporter)),
	)
	if err != nil {
		return err
	}

	schemaPath := opts.schemaPath
	if schemaPath == "" {
		schemaPath = cfg.SchemaPath
	}
	dsl, err := readSchemaFile(schemaPath)
	if err != nil {
		return err
	}
	if _, err := svc.LoadSchema(ctx, dsl); err != nil {
		return err
	}

	var records interface{}
	if len(opts.keys) > 0 {
		keys := make([]interface{}, len(opts.keys))
		for i, k := range opts.keys {
			keys[i] = k
		}
		records, err = svc.Find(ctx, entity, keys, opts.with...)
	} else {
		records, err = svc.All(ctx, entity, opts.with...)
	}
	if err != nil {
		return err
	}

	var out []byte
	if opts.compact {
		out, err = json.Marshal(records)
	} else {
		out, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	load := collector.GetLoadMetrics()
	log.Info("load finished",
		zap.String("entity", entity),
		zap.Any("fetches", load.Fetches),
		zap.Any("skips", load.Skips),
		zap.Any("unresolved", load.Unresolved),
	)

	addr := opts.metricsAddr
	if addr == "" && cfg.Metrics.Port > 0 {
		addr = fmt.Sprintf(":%d", cfg.Metrics.Port)
	}
	if addr == "" {
		return nil
	}
	log.Info("serving metrics until interrupted", zap.String("addr", addr))
	return metrics.Serve(ctx, addr, promRegistry)
}

// newRowStore picks the row store for the configured driver and wraps it
// in the row cache when caching is enabled
func newRowStore(ctx context.Context, cfg *config.Config, db *database.Database, log *zap.Logger) (repositories.RowStore, func(), error) {
	var store repositories.RowStore
	switch db.Driver {
	case config.DriverSQLite:
		store = sqlite.NewSQLiteRowStore(db.DB)
	default:
		store = postgres.NewPostgresRowStore(db.DB)
	}

	if !cfg.Cache.Enabled {
		return store, func() {}, nil
	}

	rowCache, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
		DefaultTTL:    cfg.Cache.TTL(),
		EnableMetrics: cfg.Cache.Metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create row cache: %w", err)
	}
	cachedStore := cached.NewRowStore(store, rowCache, cfg.Cache.TTL())
	log.Info("row cache enabled",
		zap.Int64("max_memory_bytes", cfg.Cache.MaxMemoryBytes),
		zap.Duration("ttl", cfg.Cache.TTL()),
	)

	if db.Driver != config.DriverPostgres || cfg.Cache.NotifyChannel == "" {
		return cachedStore, func() { rowCache.Close() }, nil
	}

	invalidator := cache.NewInvalidator(cachedStore, cfg.Database.ConnectionString(), cfg.Cache.NotifyChannel, log)
	if err := invalidator.Start(ctx); err != nil {
		rowCache.Close()
		return nil, nil, fmt.Errorf("failed to start cache invalidator: %w", err)
	}
	return cachedStore, func() {
		invalidator.Stop()
		rowCache.Close()
	}, nil
}
