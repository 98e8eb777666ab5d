package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	artifactFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "artifact",
			Aliases: []string{"a"},
			Usage:   "Index artifact to load (default from config)",
		}
	}
	return &cli.App{
		Name:  "searcher",
		Usage: "Serve and run scripture searches against an index artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"SS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP search service",
				Action: serveCommand,
				Flags: []cli.Flag{
					artifactFlag(),
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Listen port (default from config)",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run one search and print the result lines",
				ArgsUsage: "<query>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					artifactFlag(),
					&cli.StringFlag{
						Name:  "prefs",
						Usage: "JSON file with search preferences",
					},
					&cli.BoolFlag{
						Name:  "and",
						Usage: "Require every term to match",
					},
					&cli.BoolFlag{
						Name:  "exact",
						Usage: "Match words exactly instead of by stem",
					},
					&cli.BoolFlag{
						Name:  "case-sensitive",
						Usage: "Match the query's capitalization",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full result as JSON",
					},
				},
			},
			{
				Name:      "preview",
				Usage:     "Print the chapter around a verse path such as ot:0.0.0",
				ArgsUsage: "<path>",
				Action:    previewCommand,
				Flags:     []cli.Flag{artifactFlag()},
			},
		},
	}
}

// setup loads the config once for every command and configures logging
// from it. --log-level wins over the file and the environment.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		switch lvl {
		case "debug", "info", "warn", "error":
			cfg.Logging.Level = lvl
		default:
			return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", lvl)
		}
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func openArtifact(c *cli.Context, cfg *config.Config) (*segment.Reader, error) {
	path := cfg.Artifact.Path
	if c.IsSet("artifact") {
		path = c.String("artifact")
	}
	reader, err := segment.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("artifact loaded", "path", path, "digest", reader.Digest(), "verses", reader.Header().VerseCount)
	return reader, nil
}

func queryCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	reader, err := openArtifact(c, loadedConfig(c))
	if err != nil {
		return err
	}
	prefs := preferences.Default(reader.Corpus())
	if path := c.String("prefs"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading preferences: %w", err)
		}
		if prefs, err = preferences.Parse(data); err != nil {
			return err
		}
	}
	if c.IsSet("and") {
		prefs.And = c.Bool("and")
	}
	if c.IsSet("exact") {
		prefs.Exact = c.Bool("exact")
	}
	if c.IsSet("case-sensitive") {
		prefs.CaseSensitive = c.Bool("case-sensitive")
	}

	result, err := executor.New(reader).Execute(c.Context, query, prefs)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	for _, line := range result.Results {
		fmt.Fprintln(c.App.Writer, line)
	}
	slog.Info("search completed", "query", query, "mode", result.Mode, "total_hits", result.TotalHits)
	return nil
}

func previewCommand(c *cli.Context) error {
	path, err := corpus.ParseVersePath(c.Args().First())
	if err != nil {
		return err
	}
	reader, err := openArtifact(c, loadedConfig(c))
	if err != nil {
		return err
	}
	lines, err := executor.New(reader).ChapterPreview(path)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	reader, err := openArtifact(c, cfg)
	if err != nil {
		return err
	}
	m.ArtifactBytes.Set(float64(reader.Size()))
	exec := executor.New(reader)
	if cfg.Search.WarmOnStart {
		start := time.Now()
		if err := exec.Warm(); err != nil {
			return fmt.Errorf("warming index: %w", err)
		}
		slog.Info("index warmed", "took", time.Since(start).Round(time.Millisecond))
	}

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		if exec.VerseCount() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no verses loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d verses", exec.VerseCount())}
	})

	queryCache, closeCache := setupCache(ctx, cfg, reader.Digest(), m, checker)
	defer closeCache()

	aggregator := analytics.NewAggregator()
	collector, closeAnalytics := setupAnalytics(ctx, cfg, aggregator, m, checker)
	defer closeAnalytics()

	stats := reader.Stats()
	h := handler.New(exec, handler.Options{
		DefaultPreferences: preferences.Default(reader.Corpus()),
		MaxQueryLength:     cfg.Search.MaxQueryLength,
		Cache:              queryCache,
		Collector:          collector,
		Aggregator:         aggregator,
		Metrics:            m,
		ArtifactInfo:       stats,
	})

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Metrics must see the mux directly so r.Pattern is set for its labels.
	chain := middleware.Metrics(m)(mux)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...))(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening",
		"addr", server.Addr,
		"verses", stats.Verses,
		"stems", stats.Stems,
		"cache", queryCache != nil,
	)
	err = server.ListenAndServe()
	// Background workers flush and exit on cancellation before the
	// deferred closers release their connections.
	stop()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}

// setupCache connects the Redis query cache. A disabled or unreachable
// cache leaves the searcher running uncached.
func setupCache(ctx context.Context, cfg *config.Config, digest string, m *metrics.Metrics, checker *health.Checker) (*cache.QueryCache, func()) {
	if !cfg.Search.CacheEnabled || cfg.Redis.Addr == "" {
		slog.Info("search cache disabled")
		return nil, func() {}
	}
	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		checker.RegisterOptional("redis", func(context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDown, Message: "not connected"}
		})
		return nil, func() {}
	}
	checker.RegisterOptional("redis", func(ctx context.Context) health.ComponentHealth {
		if err := client.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	qc := cache.New(client, cache.Options{
		TTL:        cfg.Redis.CacheTTL,
		Generation: digest,
		Metrics:    m,
		Breaker:    breaker,
	})
	slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return qc, func() { client.Close() }
}

// setupAnalytics starts the event collector. With brokers configured,
// events go through Kafka and a consumer feeds the aggregator; otherwise the
// aggregator receives batches directly. Snapshots are persisted to Postgres
// when an interval is set.
func setupAnalytics(ctx context.Context, cfg *config.Config, agg *analytics.Aggregator, m *metrics.Metrics, checker *health.Checker) (*analytics.Collector, func()) {
	var closers []func()
	opts := analytics.CollectorOptions{
		BufferSize:    cfg.Analytics.BufferSize,
		BatchSize:     cfg.Analytics.BatchSize,
		FlushInterval: cfg.Analytics.FlushInterval,
		Metrics:       m,
	}

	var publisher analytics.Publisher = agg
	if len(cfg.Kafka.Brokers) > 0 {
		topic := cfg.Kafka.Topics.SearchEvents
		producer := kafka.NewProducer(cfg.Kafka, topic)
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				slog.Error("kafka producer close error", "error", err)
			}
		})
		publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka, topic, agg.HandleMessage)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
		checker.RegisterOptional("kafka", func(ctx context.Context) health.ComponentHealth {
			if err := kafka.Ping(ctx, cfg.Kafka); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("analytics publishing to kafka", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
	}

	collector := analytics.NewCollector(publisher, opts)
	collector.Start(ctx)

	if cfg.Analytics.SnapshotInterval > 0 {
		if db, done, err := openSnapshotStore(ctx, cfg, agg, checker); err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			closers = append(closers, func() {
				<-done
				db.Close()
			})
		}
	}

	return collector, func() {
		// The collector flushes into the producer, so it closes first.
		collector.Close()
		for _, fn := range closers {
			fn()
		}
	}
}

// openSnapshotStore starts periodic snapshots. done is closed once the
// final snapshot has been written after ctx ends.
func openSnapshotStore(ctx context.Context, cfg *config.Config, agg *analytics.Aggregator, checker *health.Checker) (db *postgres.Client, done <-chan struct{}, err error) {
	db, err = postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	store := analytics.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if last, err := store.LatestSnapshot(ctx); err == nil && last != nil {
		slog.Info("previous analytics snapshot found", "total_searches", last.TotalSearches, "since", last.Since)
	}
	checker.RegisterOptional("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		store.Run(ctx, agg, cfg.Analytics.SnapshotInterval)
	}()
	return db, finished, nil
}
