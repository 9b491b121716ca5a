// Package postgres talks to the target database ahead of a backup run: a
// fast connection probe and an advisory size estimate. Both open one
// short-lived connection and close it before returning.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	probeTimeout    = 5 * time.Second
	estimateTimeout = 10 * time.Second
)

// conn is the slice of *pgx.Conn the probe and estimator need.
type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

type connectFunc func(ctx context.Context, connectionURL string) (conn, error)

func pgxConnect(ctx context.Context, connectionURL string) (conn, error) {
	return pgx.Connect(ctx, connectionURL)
}

// ProbeResult reports whether a connection string is usable. Message is
// safe to surface to the caller.
type ProbeResult struct {
	OK      bool
	Message string
}

// Prober fast-fails unusable connection strings before the pipeline
// commits to a long-running dump.
type Prober struct {
	timeout time.Duration
	connect connectFunc
}

func NewProber() *Prober {
	return &Prober{timeout: probeTimeout, connect: pgxConnect}
}

// Probe opens one connection, runs a trivial query, and closes it. It
// never returns an error; callers branch on OK.
func (p *Prober) Probe(ctx context.Context, connectionURL string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	c, err := p.connect(ctx, connectionURL)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("connect: %v", err)}
	}
	defer c.Close(ctx)

	var one int
	if err := c.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return ProbeResult{Message: fmt.Sprintf("query: %v", err)}
	}
	return ProbeResult{OK: true, Message: "connection validated"}
}

// Estimate is advisory sizing for the timeout budget. The zero value means
// "unknown" and must never block a backup.
type Estimate struct {
	SizeBytes   int64
	TablesCount int
}

const tableCountQuery = `SELECT count(*) FROM pg_tables WHERE schemaname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

// Estimator reads engine-level size and catalog metadata.
type Estimator struct {
	timeout time.Duration
	connect connectFunc
	logger  zerolog.Logger
}

func NewEstimator(logger zerolog.Logger) *Estimator {
	return &Estimator{timeout: estimateTimeout, connect: pgxConnect, logger: logger}
}

// Estimate returns the database size and user table count, or the zero
// Estimate when anything fails.
func (e *Estimator) Estimate(ctx context.Context, connectionURL string) Estimate {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.connect(ctx, connectionURL)
	if err != nil {
		e.logger.Debug().Err(err).Msg("size estimate unavailable")
		return Estimate{}
	}
	defer c.Close(ctx)

	var est Estimate
	if err := c.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&est.SizeBytes); err != nil {
		e.logger.Debug().Err(err).Msg("size estimate unavailable")
		return Estimate{}
	}
	if err := c.QueryRow(ctx, tableCountQuery).Scan(&est.TablesCount); err != nil {
		e.logger.Debug().Err(err).Msg("size estimate unavailable")
		return Estimate{}
	}
	return est
}
