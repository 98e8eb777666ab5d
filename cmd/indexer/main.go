package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "indexer",
		Usage: "Build and inspect scripture index artifacts",
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
				Name:   "build",
				Usage:  "Index the corpus and write an artifact",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "corpus",
						Usage: "Directory holding the five volume documents (default from config)",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Artifact output path (default from config)",
					},
					&cli.BoolFlag{
						Name:  "record",
						Usage: "Record the build in the Postgres registry",
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Log the span tree of the build",
					},
					&cli.StringFlag{
						Name:  "metrics-textfile",
						Usage: "Write build metrics in Prometheus text format to this file",
					},
				},
			},
			{
				Name:      "verify",
				Usage:     "Check an artifact's digest and that every verse renders",
				ArgsUsage: "[artifact]",
				Action:    verifyCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "registry",
						Usage: "Also require the digest to be recorded in the registry",
					},
				},
			},
			{
				Name:      "stats",
				Usage:     "Print artifact statistics as JSON",
				ArgsUsage: "[artifact]",
				Action:    statsCommand,
			},
			{
				Name:   "history",
				Usage:  "List recorded builds, newest first",
				Action: historyCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of builds to list",
						Value: 20,
					},
				},
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

func artifactPath(c *cli.Context, cfg *config.Config) string {
	if p := c.Args().First(); p != "" {
		return p
	}
	return cfg.Artifact.Path
}

func buildCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := cfg.Corpus.Dir
	if c.IsSet("corpus") {
		dir = c.String("corpus")
	}
	out := cfg.Artifact.Path
	if c.IsSet("out") {
		out = c.String("out")
	}
	record := cfg.Indexer.RecordBuilds || c.Bool("record")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	start := time.Now()
	corp, err := corpus.Load(dir)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	slog.Info("corpus loaded", "dir", dir, "verses", corp.VerseCount())

	builder := indexer.NewBuilder(indexer.Options{
		Metrics: m,
		Trace:   cfg.Tracing.Enabled || c.Bool("trace"),
	})
	var snap *index.Snapshot
	err = resilience.WithTimeout(ctx, cfg.Indexer.Timeout, "index build", func(ctx context.Context) error {
		var err error
		snap, err = builder.Build(ctx, corp)
		return err
	})
	if apperrors.IsBuildFailure(err) {
		// The corpus itself is unusable; retrying will not help.
		return cli.Exit(fmt.Sprintf("corpus rejected: %v", err), 2)
	}
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	info, err := segment.NewWriter().Write(out, snap, corp)
	if err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	took := time.Since(start)
	m.ArtifactBytes.Set(float64(info.Size))
	slog.Info("artifact written",
		"path", info.Path,
		"bytes", info.Size,
		"verses", info.Verses,
		"stems", info.Stems,
		"digest", info.Digest,
		"took", took.Round(time.Millisecond),
	)

	if path := c.String("metrics-textfile"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if !record {
		return nil
	}
	return withRegistry(ctx, cfg, func(r *registry.Registry) error {
		inserted, err := r.Record(ctx, registry.FromInfo(info, took))
		if err != nil {
			return err
		}
		slog.Info("build recorded", "digest", info.Digest, "new", inserted)
		return nil
	})
}

func verifyCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	path := artifactPath(c, cfg)
	reader, err := segment.Open(path)
	if err != nil {
		return err
	}
	// Rendering every chapter touches every path, book name and verse text.
	if err := executor.New(reader).Warm(); err != nil {
		return fmt.Errorf("verifying %s: %w", path, err)
	}
	slog.Info("artifact verified", "path", path, "digest", reader.Digest(), "verses", reader.Header().VerseCount)

	if !c.Bool("registry") {
		return nil
	}
	return withRegistry(c.Context, cfg, func(r *registry.Registry) error {
		b, err := r.Lookup(c.Context, reader.Digest())
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("artifact %s was not produced by a recorded build", reader.Digest())
		}
		if err != nil {
			return err
		}
		slog.Info("build found in registry", "created_at", b.CreatedAt, "duration", b.Duration)
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	reader, err := segment.Open(artifactPath(c, loadedConfig(c)))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(reader.Stats())
}

func historyCommand(c *cli.Context) error {
	return withRegistry(c.Context, loadedConfig(c), func(r *registry.Registry) error {
		builds, err := r.List(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(builds)
	})
}

func withRegistry(ctx context.Context, cfg *config.Config, fn func(*registry.Registry) error) error {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	r := registry.New(db)
	if err := r.Migrate(ctx); err != nil {
		return err
	}
	return fn(r)
}
