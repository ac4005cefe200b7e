// Package sqlprobe instruments database/sql connections, recording
// every executed statement as a query entry.
//
// Wrap the driver's connector before opening the pool:
//
//	p, _ := sqlprobe.New(sqlprobe.Config{Collector: c, Source: "orders"})
//	db := sql.OpenDB(p.Driver(&sqlite.Driver{}, "orders.db"))
//
// The wrappers preserve the optional driver interfaces database/sql
// probes for: a method the underlying driver lacks falls back the same
// way the bare driver would (driver.ErrSkip, prepared-statement path).
package sqlprobe

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// DefaultSlowThreshold marks queries at or above one second as slow.
const DefaultSlowThreshold = time.Second

// ErrNoCollector is returned when a Probe is built without a collector.
var ErrNoCollector = errors.New("sqlprobe: collector is required")

// Config configures a Probe. Collector is required.
type Config struct {
	Collector *collector.Collector

	// Source labels the connection in recorded entries, so queries
	// against different databases group separately.
	Source string

	// SlowThreshold marks queries at or above this duration as slow.
	// Defaults to DefaultSlowThreshold.
	SlowThreshold time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Probe records executed statements. One Probe can wrap any number of
// connectors.
type Probe struct {
	collector *collector.Collector
	source    string
	slow      time.Duration
	now       func() time.Time
}

// New creates a Probe.
func New(cfg Config) (*Probe, error) {
	if cfg.Collector == nil {
		return nil, ErrNoCollector
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Probe{
		collector: cfg.Collector,
		source:    cfg.Source,
		slow:      cfg.SlowThreshold,
		now:       cfg.Now,
	}, nil
}

// Connector wraps dc so every statement executed through it is
// recorded.
func (p *Probe) Connector(dc driver.Connector) driver.Connector {
	return &probeConnector{Connector: dc, probe: p}
}

// Driver wraps a DSN-style driver as a recorded connector, for drivers
// that expose no driver.Connector of their own.
func (p *Probe) Driver(d driver.Driver, dsn string) driver.Connector {
	return p.Connector(dsnConnector{dsn: dsn, driver: d})
}

// record emits one query entry. driver.ErrSkip means the call was
// redirected to another code path and will be recorded there.
func (p *Probe) record(ctx context.Context, query string, start time.Time, err error) {
	if errors.Is(err, driver.ErrSkip) {
		return
	}
	elapsed := p.now().Sub(start)
	payload := entry.QueryPayload{
		SQL:        query,
		Source:     p.source,
		DurationMS: float64(elapsed) / float64(time.Millisecond),
		Slow:       elapsed >= p.slow,
	}
	var opts []collector.Option
	if id := entry.CorrelationIDFromContext(ctx); id != "" {
		opts = append(opts, collector.WithCorrelationID(id))
	}
	p.collector.Collect(ctx, payload, opts...)
}

// dsnConnector pairs a legacy driver with its DSN so it can be used
// through sql.OpenDB.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}

type probeConnector struct {
	driver.Connector
	probe *Probe
}

func (c *probeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &probeConn{Conn: conn, probe: c.probe}, nil
}

// probeConn wraps driver.Conn. It re-exposes the optional interfaces
// database/sql type-asserts for; each falls back to the behavior
// database/sql applies when the interface is missing.
type probeConn struct {
	driver.Conn
	probe *Probe
}

func (c *probeConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &probeStmt{Stmt: stmt, probe: c.probe, query: query}, nil
}

func (c *probeConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var stmt driver.Stmt
	var err error
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &probeStmt{Stmt: stmt, probe: c.probe, query: query}, nil
}

func (c *probeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := c.probe.now()
	rows, err := q.QueryContext(ctx, query, args)
	c.probe.record(ctx, query, start, err)
	return rows, err
}

func (c *probeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := c.probe.now()
	result, err := e.ExecContext(ctx, query, args)
	c.probe.record(ctx, query, start, err)
	return result, err
}

func (c *probeConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	if opts != (driver.TxOptions{}) {
		return nil, errors.New("sqlprobe: driver does not support transaction options")
	}
	return c.Conn.Begin()
}

func (c *probeConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *probeConn) ResetSession(ctx context.Context) error {
	if rs, ok := c.Conn.(driver.SessionResetter); ok {
		return rs.ResetSession(ctx)
	}
	return nil
}

func (c *probeConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *probeConn) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := c.Conn.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// probeStmt wraps driver.Stmt so statements executed through the
// prepared path are recorded too.
type probeStmt struct {
	driver.Stmt
	probe *Probe
	query string
}

func (s *probeStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := s.probe.now()
	rows, err := s.queryContext(ctx, args)
	s.probe.record(ctx, s.query, start, err)
	return rows, err
}

func (s *probeStmt) queryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if sq, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, args)
	}
	values, err := namedValues(args)
	if err != nil {
		return nil, err
	}
	return s.Stmt.Query(values)
}

func (s *probeStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := s.probe.now()
	result, err := s.execContext(ctx, args)
	s.probe.record(ctx, s.query, start, err)
	return result, err
}

func (s *probeStmt) execContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if se, ok := s.Stmt.(driver.StmtExecContext); ok {
		return se.ExecContext(ctx, args)
	}
	values, err := namedValues(args)
	if err != nil {
		return nil, err
	}
	return s.Stmt.Exec(values)
}

func (s *probeStmt) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := s.Stmt.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// namedValues converts named arguments to ordinal ones for legacy
// statements, the same conversion database/sql applies.
func namedValues(named []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			return nil, errors.New("sqlprobe: driver does not support named parameters")
		}
		values[i] = nv.Value
	}
	return values, nil
}
