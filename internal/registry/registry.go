// Package registry keeps a history of built index artifacts in Postgres so
// that a deployed searcher can be traced back to the build that produced
// its artifact.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

const Schema = `CREATE TABLE IF NOT EXISTS artifact_builds (
	digest      TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL,
	verses      INTEGER NOT NULL,
	stems       INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`

// ErrNotFound is returned when no build matches.
var ErrNotFound = errors.New("artifact build not found")

// Build is one recorded artifact.
type Build struct {
	Digest    string        `json:"digest"`
	Path      string        `json:"path"`
	Size      int64         `json:"size_bytes"`
	Verses    int           `json:"verses"`
	Stems     int           `json:"stems"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// FromInfo builds a registry record for a written artifact.
func FromInfo(info segment.Info, took time.Duration) Build {
	return Build{
		Digest:    info.Digest,
		Path:      info.Path,
		Size:      info.Size,
		Verses:    info.Verses,
		Stems:     info.Stems,
		Duration:  took,
		CreatedAt: info.CreatedAt,
	}
}

type Registry struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db *postgres.Client) *Registry {
	return &Registry{
		db:     db,
		retry:  resilience.RetryConfig{MaxAttempts: 3},
		logger: logger.WithComponent("artifact-registry"),
	}
}

func (r *Registry) Migrate(ctx context.Context) error {
	return r.db.Migrate(ctx, Schema)
}

// Record stores b. Recording the same digest twice is a no-op and reports
// false. Transient failures are retried.
func (r *Registry) Record(ctx context.Context, b Build) (bool, error) {
	var inserted bool
	err := resilience.Retry(ctx, "registry-record", r.retry, func() error {
		res, err := r.db.DB.ExecContext(ctx,
			`INSERT INTO artifact_builds (digest, path, size_bytes, verses, stems, duration_ms, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (digest) DO NOTHING`,
			b.Digest, b.Path, b.Size, b.Verses, b.Stems, b.Duration.Milliseconds(), b.CreatedAt.UTC(),
		)
		if err != nil {
			return classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return resilience.Permanent(err)
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording build %s: %w", b.Digest, err)
	}
	r.logger.Info("artifact build recorded", "digest", b.Digest, "new", inserted)
	return inserted, nil
}

const selectBuild = `SELECT digest, path, size_bytes, verses, stems, duration_ms, created_at FROM artifact_builds`

// Lookup returns the build with the given digest.
func (r *Registry) Lookup(ctx context.Context, digest string) (Build, error) {
	row := r.db.DB.QueryRowContext(ctx, selectBuild+` WHERE digest = $1`, digest)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	return b, err
}

// Latest returns the most recently created build.
func (r *Registry) Latest(ctx context.Context) (Build, error) {
	row := r.db.DB.QueryRowContext(ctx, selectBuild+` ORDER BY created_at DESC LIMIT 1`)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, ErrNotFound
	}
	return b, err
}

// List returns up to limit builds, newest first.
func (r *Registry) List(ctx context.Context, limit int) ([]Build, error) {
	rows, err := r.db.DB.QueryContext(ctx, selectBuild+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()
	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (Build, error) {
	var (
		b  Build
		ms int64
	)
	err := s.Scan(&b.Digest, &b.Path, &b.Size, &b.Verses, &b.Stems, &ms, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, err
		}
		return Build{}, fmt.Errorf("scanning build: %w", err)
	}
	b.Duration = time.Duration(ms) * time.Millisecond
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// classify marks errors that will not go away on retry: SQL syntax and
// access-rule violations (class 42) and integrity violations (class 23).
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "42", "23":
			return resilience.Permanent(err)
		}
	}
	return err
}
