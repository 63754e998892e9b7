package backends

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/rencode"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Message types in a daemon reply.
const (
	delugeResponse = 1
	delugeError    = 2
	delugeEvent    = 3
)

// DelugeError is an exception raised by the daemon while handling a call.
type DelugeError struct {
	Type    string
	Message string
}

func (e *DelugeError) Error() string {
	return fmt.Sprintf("deluge: %s: %s", e.Type, e.Message)
}

// Deluge speaks the daemon's native RPC protocol: each call is a rencoded,
// zlib-compressed ((id, method, args, kwargs),) tuple sent over TLS.
type Deluge struct {
	cfg  config.BackendConfig
	dial func(ctx context.Context) (net.Conn, error)

	mu        sync.Mutex
	conn      net.Conn
	rd        *bufio.Reader
	requestID int64
}

func NewDeluge(bc config.BackendConfig) *Deluge {
	d := &Deluge{cfg: bc}
	d.dial = d.dialTLS
	return d
}

func (d *Deluge) dialTLS(ctx context.Context) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.cfg.Timeout},
		Config:    &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // the daemon generates a self-signed certificate
	}
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	return conn, errors.WithStack(err)
}

func (d *Deluge) connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	if d.cfg.Host == "" || d.cfg.Port == 0 {
		return errors.New("deluge: host and port are required")
	}

	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}
	d.conn = conn
	d.rd = bufio.NewReader(conn)

	if d.cfg.Username != "" {
		_, err = d.roundTrip(ctx, "daemon.login", []any{d.cfg.Username, d.cfg.Password}, nil)
	} else {
		_, err = d.roundTrip(ctx, "auth.login", []any{d.cfg.Password}, nil)
	}
	if err != nil {
		d.reset()
		return errors.Wrap(err, "deluge: login failed")
	}
	return nil
}

func (d *Deluge) reset() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn = nil
	d.rd = nil
}

// Close drops the daemon connection. The next call reconnects.
func (d *Deluge) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
	return nil
}

// Call invokes method on the daemon, connecting and logging in first when
// needed. A transport failure drops the connection.
func (d *Deluge) Call(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	result, err := d.roundTrip(ctx, method, args, kwargs)
	if err != nil {
		var rpcErr *DelugeError
		if !errors.As(err, &rpcErr) {
			d.reset()
		}
		return nil, err
	}
	return result, nil
}

func (d *Deluge) roundTrip(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	d.requestID++
	id := d.requestID

	logger.FromContext(ctx).Debug("deluge call", logger.Data{"id": id, "method": method})

	payload, err := rencode.Marshal([]any{[]any{id, method, args, kwargs}})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}

	var deadline time.Time
	if d.cfg.Timeout > 0 {
		deadline = time.Now().Add(d.cfg.Timeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	_ = d.conn.SetDeadline(deadline)

	if _, err := d.conn.Write(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "deluge: write failed")
	}
	return d.receive(id)
}

// receive reads replies until the one for id arrives. Events pushed by the
// daemon in between are skipped.
func (d *Deluge) receive(id int64) (any, error) {
	for {
		zr, err := zlib.NewReader(d.rd)
		if err != nil {
			return nil, errors.Wrap(err, "deluge: read failed")
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrap(err, "deluge: read failed")
		}

		msg, err := rencode.Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		parts, ok := msg.([]any)
		if !ok || len(parts) < 2 {
			return nil, errors.Errorf("deluge: malformed reply %v", msg)
		}
		msgType, _ := parts[0].(int64)
		if msgType == delugeEvent {
			continue
		}
		if replyID, _ := parts[1].(int64); replyID != id {
			continue
		}

		switch msgType {
		case delugeResponse:
			if len(parts) < 3 {
				return nil, nil
			}
			return parts[2], nil
		case delugeError:
			return nil, delugeErrorFrom(parts[2:])
		}
		return nil, errors.Errorf("deluge: unknown message type %d", msgType)
	}
}

func delugeErrorFrom(parts []any) error {
	e := &DelugeError{Type: "Exception"}
	if len(parts) > 0 {
		if s, ok := parts[0].(string); ok {
			e.Type = s
		}
	}
	if len(parts) > 1 {
		e.Message = fmt.Sprint(parts[1])
	}
	return e
}

func (d *Deluge) ObservedName(ctx context.Context, handle string) (string, bool) {
	result, err := d.Call(ctx, "core.get_torrent_status", []any{handle, []any{"name"}}, nil)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("deluge: failed to get torrent status")
		return "", false
	}
	status, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	name, _ := status["name"].(string)
	return name, name != ""
}

func (d *Deluge) RemoveTask(ctx context.Context, handle string, purge bool) bool {
	result, err := d.Call(ctx, "core.remove_torrent", []any{handle, purge}, nil)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("deluge: failed to remove torrent")
		return false
	}
	removed, _ := result.(bool)
	return removed
}
