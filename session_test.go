package sqlmission

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/metrics"
	"github.com/tuannm99/sqlmission/internal/testutil"
)

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	return NewSession(nil, opts...)
}

func userCount(t *testing.T, s *Session) int {
	t.Helper()
	for _, tbl := range s.Tables() {
		if tbl.Name == "users" {
			return len(tbl.Rows)
		}
	}
	t.Fatal("users table missing")
	return 0
}

func TestSession_ExecuteAndReset(t *testing.T) {
	s := newTestSession(t)
	require.NotEmpty(t, s.ID())

	res, err := s.Execute("INSERT INTO users (name, age) VALUES ('Ivy', 24)")
	require.NoError(t, err)
	assert.True(t, res.IsMutation)
	assert.Equal(t, 9, userCount(t, s))

	s.Reset()
	assert.Equal(t, 8, userCount(t, s))

	res, err = s.Execute("SELECT * FROM users WHERE name = 'Ivy'")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestSession_FailedStatementLeavesTables(t *testing.T) {
	s := newTestSession(t)
	before := s.Tables()

	_, err := s.Execute("UPDATE users SET age=1")
	require.ErrorIs(t, err, ErrSyntax)
	_, err = s.Execute("SELECT * FROM nonexistent_table")
	require.ErrorIs(t, err, ErrTableNotFound)

	assert.Equal(t, before, s.Tables())
}

func TestSession_TablesAreCopies(t *testing.T) {
	s := newTestSession(t)
	tables := s.Tables()
	require.Len(t, tables, 3)
	assert.Equal(t, "orders", tables[0].Name)
	assert.Equal(t, "products", tables[1].Name)
	assert.Equal(t, "users", tables[2].Name)

	tables[2].Rows = nil
	assert.Equal(t, 8, userCount(t, s))
}

func TestSession_IndependentSessions(t *testing.T) {
	seed := catalog.Seed()
	a := NewSession(seed, WithLogger(testutil.NewTestLogger(t)))
	b := NewSession(seed, WithLogger(testutil.NewTestLogger(t)))
	assert.NotEqual(t, a.ID(), b.ID())

	_, err := a.Execute("DELETE FROM users WHERE id = 1")
	require.NoError(t, err)

	assert.Equal(t, 7, userCount(t, a))
	assert.Equal(t, 8, userCount(t, b))
	assert.Equal(t, catalog.Seed(), seed)
}

func TestSession_Options(t *testing.T) {
	lenient := newTestSession(t)
	res, err := lenient.Execute("SELECT * FROM users WHERE name LIKE 'A%'")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 8)

	strict := newTestSession(t, WithStrictWhere(true))
	_, err = strict.Execute("SELECT * FROM users WHERE name LIKE 'A%'")
	require.ErrorIs(t, err, ErrUnsupportedCondition)

	submitted := "SELECT * FROM orders JOIN products ON orders.product_id = products.id"
	expected := "SELECT * FROM orders JOIN users ON orders.user_id = users.id"
	assert.True(t, lenient.Diff(submitted, expected).IsCorrect)
	assert.False(t, newTestSession(t, WithCompareJoin(true)).Diff(submitted, expected).IsCorrect)
}

func TestSession_ConcurrentInserts(t *testing.T) {
	s := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Execute("INSERT INTO users (name) VALUES ('x')")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	res, err := s.Execute("SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	v, _ := res.Rows[0].Get("COUNT(*)")
	assert.Equal(t, int64(18), v)

	res, err = s.Execute("SELECT MAX(id) FROM users")
	require.NoError(t, err)
	v, _ = res.Rows[0].Get("MAX(id)")
	assert.Equal(t, int64(18), v)
}

func TestSession_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestSession(t, WithMetrics(metrics.New(reg)))

	_, _ = s.Execute("SELECT * FROM users")
	_, _ = s.Execute("SELECT * FROM ghosts")
	s.Diff("SELECT * FROM users", "SELECT * FROM users")
	s.Reset()

	n, err := promtest.GatherAndCount(reg, "sqlmission_statements_total", "sqlmission_diffs_total", "sqlmission_resets_total")
	require.NoError(t, err)
	// SELECT ok, SELECT error, one diff verdict, one reset counter
	assert.Equal(t, 4, n)
}
