package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/feedback"
	"github.com/tuannm99/sqlmission/internal/sql/executor"
	"github.com/tuannm99/sqlmission/server/missionwire"
)

// Client is a simple synchronous client.
// It locks send/recv so you can call it concurrently but requests serialize.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	return DialContext(context.Background(), addr, timeout)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// SetRWTimeout sets a per-request read/write deadline.
// Useful to avoid hanging forever if server dies.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Exec(sql string) (*executor.Result, error) {
	return c.ExecContext(context.Background(), sql)
}

func (c *Client) ExecContext(ctx context.Context, sql string) (*executor.Result, error) {
	resp, err := c.call(ctx, missionwire.Request{Op: missionwire.OpExec, SQL: sql})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Diff grades submitted against expected on the server.
func (c *Client) Diff(ctx context.Context, submitted, expected string) (*feedback.Report, error) {
	resp, err := c.call(ctx, missionwire.Request{Op: missionwire.OpDiff, SQL: submitted, Expected: expected})
	if err != nil {
		return nil, err
	}
	return resp.Feedback, nil
}

// Reset restores the session tables to the seed.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.call(ctx, missionwire.Request{Op: missionwire.OpReset})
	return err
}

// Tables returns a snapshot of the session tables.
func (c *Client) Tables(ctx context.Context) ([]*catalog.Table, error) {
	resp, err := c.call(ctx, missionwire.Request{Op: missionwire.OpTables})
	if err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

func (c *Client) call(ctx context.Context, req missionwire.Request) (*missionwire.Response, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("sqlclient: nil client")
	}

	req.ID = c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Apply deadline if configured or context has deadline.
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	if err := missionwire.WriteRequest(c.conn, req); err != nil {
		return nil, err
	}

	resp, err := missionwire.ReadResponse(c.conn)
	if err != nil {
		return nil, err
	}

	if resp.ID != req.ID {
		return nil, fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return &resp, nil
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}

// SameQuery reports whether two statements are the same text once case,
// runs of whitespace and a trailing ';' are ignored. It is the completion
// check for a task; Diff explains what differs.
func SameQuery(a, b string) bool {
	return canonical(a) == canonical(b)
}

func canonical(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
