package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- Test doubles ----------

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func intRow(v int64) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		switch d := dest[0].(type) {
		case *int64:
			*d = v
		case *int:
			*d = int(v)
		}
		return nil
	}}
}

func errRow(err error) fakeRow {
	return fakeRow{scan: func(...any) error { return err }}
}

type fakeConn struct {
	rows   map[string]fakeRow
	closed bool
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	for fragment, row := range c.rows {
		if strings.Contains(sql, fragment) {
			return row
		}
	}
	return errRow(errors.New("unexpected query: " + sql))
}

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func connectTo(c *fakeConn) connectFunc {
	return func(context.Context, string) (conn, error) { return c, nil }
}

func connectErr(err error) connectFunc {
	return func(context.Context, string) (conn, error) { return nil, err }
}

// ---------- Prober ----------

func TestProber_OK(t *testing.T) {
	c := &fakeConn{rows: map[string]fakeRow{"SELECT 1": intRow(1)}}
	p := &Prober{timeout: time.Second, connect: connectTo(c)}

	res := p.Probe(context.Background(), "postgres://db/orders")
	assert.True(t, res.OK)
	assert.Equal(t, "connection validated", res.Message)
	assert.True(t, c.closed, "probe must close its connection")
}

func TestProber_ConnectFailure(t *testing.T) {
	p := &Prober{timeout: time.Second, connect: connectErr(errors.New("connection refused"))}

	res := p.Probe(context.Background(), "postgres://db/orders")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "connection refused")
}

func TestProber_QueryFailure(t *testing.T) {
	c := &fakeConn{rows: map[string]fakeRow{"SELECT 1": errRow(errors.New("terminating connection"))}}
	p := &Prober{timeout: time.Second, connect: connectTo(c)}

	res := p.Probe(context.Background(), "postgres://db/orders")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "terminating connection")
	assert.True(t, c.closed)
}

func TestProber_AppliesShortTimeout(t *testing.T) {
	var deadline time.Time
	p := &Prober{
		timeout: probeTimeout,
		connect: func(ctx context.Context, _ string) (conn, error) {
			d, ok := ctx.Deadline()
			require.True(t, ok, "probe must bound its connection attempt")
			deadline = d
			return nil, errors.New("nope")
		},
	}

	p.Probe(context.Background(), "postgres://db/orders")
	assert.LessOrEqual(t, time.Until(deadline), probeTimeout)
}

// ---------- Estimator ----------

func newTestEstimator(connect connectFunc) *Estimator {
	return &Estimator{timeout: time.Second, connect: connect, logger: zerolog.Nop()}
}

func TestEstimator_ReturnsSizeAndTables(t *testing.T) {
	c := &fakeConn{rows: map[string]fakeRow{
		"pg_database_size": intRow(1536 * 1024 * 1024),
		"pg_tables":        intRow(42),
	}}
	e := newTestEstimator(connectTo(c))

	est := e.Estimate(context.Background(), "postgres://db/orders")
	assert.Equal(t, int64(1536*1024*1024), est.SizeBytes)
	assert.Equal(t, 42, est.TablesCount)
	assert.True(t, c.closed)
}

func TestEstimator_ConnectFailureIsSoft(t *testing.T) {
	e := newTestEstimator(connectErr(errors.New("no route to host")))

	est := e.Estimate(context.Background(), "postgres://db/orders")
	assert.Equal(t, Estimate{}, est)
}

func TestEstimator_SizeQueryFailureIsSoft(t *testing.T) {
	c := &fakeConn{rows: map[string]fakeRow{
		"pg_database_size": errRow(errors.New("permission denied")),
		"pg_tables":        intRow(42),
	}}
	e := newTestEstimator(connectTo(c))

	est := e.Estimate(context.Background(), "postgres://db/orders")
	assert.Equal(t, Estimate{}, est)
}

func TestEstimator_TableCountFailureIsSoft(t *testing.T) {
	c := &fakeConn{rows: map[string]fakeRow{
		"pg_database_size": intRow(100),
		"pg_tables":        errRow(errors.New("permission denied")),
	}}
	e := newTestEstimator(connectTo(c))

	est := e.Estimate(context.Background(), "postgres://db/orders")
	assert.Equal(t, Estimate{}, est)
}
