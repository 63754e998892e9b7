package database

import (
	"context"
	"database/sql/driver"
	"math/rand"
	"strings"
	"time"
)

// backoff retries SQLITE_BUSY and SQLITE_LOCKED failures with capped
// exponential delays.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func newBackoff(retries int) backoff {
	return backoff{attempts: retries, base: 50 * time.Millisecond, max: 2 * time.Second}
}

var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"(5)",
	"(6)",
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.max
	if attempt < 16 {
		d = min(b.base<<attempt, b.max)
	}
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}

func (b backoff) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) || attempt >= b.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}
}

type busyConnector struct {
	driver.Connector
	policy backoff
}

func (bc *busyConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := bc.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &busyConn{Conn: conn, policy: bc.policy}, nil
}

// busyConn only overrides the context-aware entry points; database/sql
// prefers those whenever the underlying driver offers them.
type busyConn struct {
	driver.Conn
	policy backoff
}

func (c *busyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var tx driver.Tx
	err := c.policy.do(ctx, func() (err error) {
		if b, ok := c.Conn.(driver.ConnBeginTx); ok {
			tx, err = b.BeginTx(ctx, opts)
			return err
		}
		tx, err = c.Conn.Begin() //nolint:staticcheck
		return err
	})
	return tx, err
}

func (c *busyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *busyConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var res driver.Result
	err := c.policy.do(ctx, func() (err error) {
		res, err = e.ExecContext(ctx, query, args)
		return err
	})
	return res, err
}

func (c *busyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var rows driver.Rows
	err := c.policy.do(ctx, func() (err error) {
		rows, err = q.QueryContext(ctx, query, args)
		return err
	})
	return rows, err
}

func (c *busyConn) ResetSession(ctx context.Context) error {
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *busyConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}
