package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlmission/internal/testutil"
	"github.com/tuannm99/sqlmission/server/missionwire"
)

func startServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- missionwire.Serve(ctx, ln, missionwire.ServerConfig{Logger: testutil.NewTestLogger(t)})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func runWith(t *testing.T, o options, input string) string {
	t.Helper()
	o.timeout = 2 * time.Second
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), o, strings.NewReader(input), &out))
	return out.String()
}

func TestStatementComplete(t *testing.T) {
	assert.True(t, statementComplete("SELECT * FROM users;"))
	assert.False(t, statementComplete("SELECT * FROM users"))
	assert.False(t, statementComplete("SELECT * FROM users WHERE name = 'a;b'"))
	assert.True(t, statementComplete("SELECT * FROM users WHERE name = 'a;b';"))
	assert.False(t, statementComplete(`SELECT * FROM users WHERE name = 'it\'s;'`))
}

func TestCompactOneLine(t *testing.T) {
	assert.Equal(t, "SELECT * FROM users WHERE age > 1;", compactOneLine("SELECT *\n\tFROM users\r\n  WHERE age > 1;"))
	assert.Equal(t, "", compactOneLine(" \n "))
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hist")
	h := NewHistory(path)
	require.NoError(t, h.Load(10))
	assert.Empty(t, h.Lines())

	require.NoError(t, h.Append("SELECT *\nFROM users;"))
	require.NoError(t, h.Append("   "))
	require.NoError(t, h.Append("SELECT * FROM orders;"))
	require.NoError(t, h.Append("SELECT * FROM products;"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users;\nSELECT * FROM orders;\nSELECT * FROM products;\n", string(data))

	reloaded := NewHistory(path)
	require.NoError(t, reloaded.Load(2))
	assert.Equal(t, []string{"SELECT * FROM orders;", "SELECT * FROM products;"}, reloaded.Lines())

	var buf bytes.Buffer
	reloaded.Print(&buf, 1)
	assert.Equal(t, "    2  SELECT * FROM products;\n", buf.String())
}

func TestRun_Script(t *testing.T) {
	addr := startServer(t)
	out := runWith(t, options{addr: addr}, strings.Join([]string{
		"SELECT name, age",
		"FROM users WHERE age >= 38;",
		"INSERT INTO users (name, age) VALUES ('Ivy', 24);",
		`\tables`,
		`\reset`,
		"SELECT * FROM ghosts;",
		`\nope`,
		`\q`,
		"SELECT * FROM users;",
	}, "\n"))

	assert.Contains(t, out, "David")
	assert.Contains(t, out, "Hank")
	assert.Contains(t, out, "(2 rows)")
	assert.Contains(t, out, "users: 2 kept, 6 filtered")
	assert.Contains(t, out, "Ivy")
	assert.Contains(t, out, "OK users: 1 new, 0 updated, 0 deleted")
	assert.Contains(t, out, "products")
	assert.Contains(t, out, "tables reset")
	assert.Contains(t, out, "error: ")
	assert.Contains(t, out, "table not found")
	assert.Contains(t, out, `unknown command: \nope`)
	// nothing runs after \q
	assert.Equal(t, 1, strings.Count(out, "(2 rows)"))
	assert.NotContains(t, out, "(8 rows)")
}

func TestRun_Expect(t *testing.T) {
	addr := startServer(t)
	out := runWith(t, options{addr: addr}, strings.Join([]string{
		`\expect SELECT * FROM users WHERE age >= 30;`,
		"SELECT * FROM users WHERE age > 30;",
		"select *  from users where age >= 30;",
		`\expect`,
		"SELECT * FROM users WHERE age > 30;",
	}, "\n"))

	assert.Contains(t, out, "grading against: SELECT * FROM users WHERE age >= 30")
	assert.Contains(t, out, "Not quite")
	assert.Contains(t, out, "Use >= (greater than or equal to), not just >")
	assert.Contains(t, out, "Fix the WHERE part of your query")
	assert.Contains(t, out, "Mission complete!")
	assert.Contains(t, out, "grading off")
	assert.Equal(t, 1, strings.Count(out, "Not quite"))
}

func TestRun_OneShot(t *testing.T) {
	addr := startServer(t)
	out := runWith(t, options{addr: addr, command: "SELECT COUNT(*) FROM orders;"}, "")
	assert.Contains(t, out, "COUNT(*)")
	assert.Contains(t, out, "8")
}

func TestRun_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = run(context.Background(), options{addr: addr, timeout: time.Second}, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}
