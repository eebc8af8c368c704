package missionwire

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlmission"
	"github.com/tuannm99/sqlmission/internal/testutil"
)

func startServer(t *testing.T, sc ServerConfig) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if sc.Logger == nil {
		sc.Logger = testutil.NewTestLogger(t)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, sc) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func roundTrip(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, WriteRequest(conn, req))
	resp, err := ReadResponse(conn)
	require.NoError(t, err)
	require.Equal(t, req.ID, resp.ID)
	return resp
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestProtocol_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Request{ID: 7, Op: OpDiff, SQL: "SELECT 1", Expected: "SELECT 2"}
	require.NoError(t, WriteRequest(&buf, want))
	assert.Equal(t, uint32(buf.Len()-4), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, WriteResponse(&buf, Response{ID: 7, Error: "boom"}))
	resp, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, Response{ID: 7, Error: "boom"}, resp)
}

func TestProtocol_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"empty frame":     {0, 0, 0, 0},
		"frame too large": {0xff, 0xff, 0xff, 0xff},
		"bad json":        {0, 0, 0, 2, '{', '['},
		"truncated frame": {0, 0, 0, 9, '{'},
	}
	for msg, in := range cases {
		_, err := ReadRequest(bytes.NewReader(in))
		require.Error(t, err, msg)
		assert.Contains(t, err.Error(), "missionwire: request: "+msg)

		_, err = ReadResponse(bytes.NewReader(in))
		require.Error(t, err, msg)
		assert.Contains(t, err.Error(), "missionwire: response: "+msg)
	}

	_, err := ReadRequest(bytes.NewReader([]byte{0, 0}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = ReadRequest(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_Ops(t *testing.T) {
	addr := startServer(t, ServerConfig{})
	conn := dial(t, addr)

	resp := roundTrip(t, conn, Request{ID: 1, Op: OpExec, SQL: "SELECT name FROM users WHERE age >= 40"})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []string{"name"}, resp.Result.Columns)
	assert.Len(t, resp.Result.Rows, 1)

	resp = roundTrip(t, conn, Request{ID: 2, Op: OpExec, SQL: "DELETE FROM users WHERE id = 4"})
	require.Empty(t, resp.Error)
	assert.True(t, resp.Result.IsMutation)

	resp = roundTrip(t, conn, Request{ID: 3, Op: OpTables})
	require.Len(t, resp.Tables, 3)
	assert.Equal(t, "users", resp.Tables[2].Name)
	assert.Len(t, resp.Tables[2].Rows, 7)

	resp = roundTrip(t, conn, Request{ID: 4, Op: OpReset})
	assert.Empty(t, resp.Error)
	resp = roundTrip(t, conn, Request{ID: 5, Op: OpTables})
	assert.Len(t, resp.Tables[2].Rows, 8)

	resp = roundTrip(t, conn, Request{ID: 6, Op: OpDiff,
		SQL: "SELECT * FROM users WHERE age > 25", Expected: "SELECT * FROM users WHERE age >= 25"})
	require.NotNil(t, resp.Feedback)
	assert.False(t, resp.Feedback.IsCorrect)
	require.Len(t, resp.Feedback.IncorrectClauses, 1)
	assert.Contains(t, resp.Feedback.IncorrectClauses[0].Hint, ">=")

	resp = roundTrip(t, conn, Request{ID: 7, Op: OpExec, SQL: "SELECT * FROM nonexistent_table"})
	assert.Contains(t, resp.Error, "table not found")
	assert.Nil(t, resp.Result)

	resp = roundTrip(t, conn, Request{ID: 8, Op: "explode"})
	assert.Contains(t, resp.Error, "unknown op")
}

func TestServer_SessionPerConnection(t *testing.T) {
	addr := startServer(t, ServerConfig{SessionOptions: []sqlmission.Option{sqlmission.WithStrictWhere(true)}})
	a := dial(t, addr)
	b := dial(t, addr)

	resp := roundTrip(t, a, Request{ID: 1, SQL: "INSERT INTO users (name) VALUES ('Ivy')"})
	require.Empty(t, resp.Error)

	resp = roundTrip(t, a, Request{ID: 2, SQL: "SELECT COUNT(*) FROM users"})
	v, _ := resp.Result.Rows[0].Get("COUNT(*)")
	assert.Equal(t, int64(9), v)

	resp = roundTrip(t, b, Request{ID: 1, SQL: "SELECT COUNT(*) FROM users"})
	v, _ = resp.Result.Rows[0].Get("COUNT(*)")
	assert.Equal(t, int64(8), v)

	resp = roundTrip(t, b, Request{ID: 2, SQL: "SELECT * FROM users WHERE name LIKE 'A%'"})
	assert.Contains(t, resp.Error, "unsupported condition")
}

func TestServer_IdleTimeout(t *testing.T) {
	addr := startServer(t, ServerConfig{IdleTimeout: 100 * time.Millisecond})
	conn := dial(t, addr)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := ReadResponse(conn)
	require.Error(t, err)
}
