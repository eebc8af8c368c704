package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlmission/internal/record"
)

func TestClassify(t *testing.T) {
	cases := map[string]StatementKind{
		"SELECT * FROM users":              KindSelect,
		"  select name from users":         KindSelect,
		"INSERT INTO users (a) VALUES (1)": KindInsert,
		"update users set a=1 where id=1":  KindUpdate,
		"DELETE FROM users WHERE id = 1":   KindDelete,
		"DROP TABLE users":                 KindUnknown,
		"":                                 KindUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestParseInsert(t *testing.T) {
	s, err := ParseInsert("INSERT INTO users (name, age, job) VALUES ('John Doe', 25, 'Tester, QA');")
	require.NoError(t, err)

	assert.Equal(t, "users", s.TableName)
	assert.Equal(t, []string{"name", "age", "job"}, s.Columns)
	assert.Equal(t, []record.Value{"John Doe", int64(25), "Tester, QA"}, s.Values)
}

func TestParseInsert_NoSpaceAroundValues(t *testing.T) {
	s, err := ParseInsert("insert into products(name,price)values('Cable',1.5)")
	require.NoError(t, err)
	assert.Equal(t, "products", s.TableName)
	assert.Equal(t, []record.Value{"Cable", 1.5}, s.Values)
}

func TestParseInsert_Invalid(t *testing.T) {
	bad := []string{
		"INSERT users (name) VALUES ('x')",
		"INSERT INTO users VALUES ('x')",
		"INSERT INTO users (name)",
		"INSERT INTO users (name, age) VALUES ('x')",
		"INSERT INTO users (name) VALUES 'x'",
		"INSERT INTO users () VALUES ()",
		"INSERT INTO users (name) VALUES (bogus)",
		"INSERT INTO 1users (name) VALUES ('x')",
	}
	for _, sql := range bad {
		_, err := ParseInsert(sql)
		require.Error(t, err, sql)
		assert.True(t, errors.Is(err, ErrSyntax), sql)
	}
}

func TestParseUpdate(t *testing.T) {
	s, err := ParseUpdate("UPDATE users SET age = 30, job='Lead' WHERE name = 'Alice'")
	require.NoError(t, err)

	assert.Equal(t, "users", s.TableName)
	assert.Equal(t, []Assignment{
		{Column: "age", Value: int64(30)},
		{Column: "job", Value: "Lead"},
	}, s.Assignments)
	assert.Equal(t, &Comparison{Column: "name", Op: OpEq, Value: "Alice"}, s.Where)
}

func TestParseUpdate_RequiresWhere(t *testing.T) {
	_, err := ParseUpdate("UPDATE users SET age=1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.Contains(t, err.Error(), "WHERE clause is required")
}

func TestParseUpdate_Invalid(t *testing.T) {
	bad := []string{
		"UPDATE users age=1 WHERE id=1",
		"UPDATE users SET WHERE id=1",
		"UPDATE users SET age WHERE id=1",
		"UPDATE users SET age=1 WHERE id > 1",
		"UPDATE users SET age=1 WHERE id",
	}
	for _, sql := range bad {
		_, err := ParseUpdate(sql)
		require.Error(t, err, sql)
		assert.True(t, errors.Is(err, ErrSyntax), sql)
	}
}

func TestParseDelete(t *testing.T) {
	s, err := ParseDelete("delete from orders where status = 'pending'")
	require.NoError(t, err)
	assert.Equal(t, "orders", s.TableName)
	assert.Equal(t, &Comparison{Column: "status", Op: OpEq, Value: "pending"}, s.Where)

	_, err = ParseDelete("DELETE FROM orders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestParseCondition_Comparisons(t *testing.T) {
	cases := []struct {
		in   string
		want *Comparison
	}{
		{"age >= 25", &Comparison{Column: "age", Op: OpGte, Value: int64(25)}},
		{"age<=25", &Comparison{Column: "age", Op: OpLte, Value: int64(25)}},
		{"salary > 7000000", &Comparison{Column: "salary", Op: OpGt, Value: int64(7000000)}},
		{"age < 30", &Comparison{Column: "age", Op: OpLt, Value: int64(30)}},
		{"job = 'Engineer'", &Comparison{Column: "job", Op: OpEq, Value: "Engineer"}},
		{`department = "IT"`, &Comparison{Column: "department", Op: OpEq, Value: "IT"}},
		{"users.name = 'a>=b'", &Comparison{Column: "users.name", Op: OpEq, Value: "a>=b"}},
		{"COUNT(*) > 1", &Comparison{Column: "COUNT(*)", Op: OpGt, Value: int64(1)}},
		{"sum(salary) >= 100", &Comparison{Column: "SUM(salary)", Op: OpGte, Value: int64(100)}},
	}
	for _, tc := range cases {
		got, err := ParseCondition(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseCondition_InSubquery(t *testing.T) {
	got, err := ParseCondition("id IN (SELECT user_id FROM orders WHERE status = 'pending')")
	require.NoError(t, err)
	assert.Equal(t, &InSubquery{Column: "id", Query: "SELECT user_id FROM orders WHERE status = 'pending'"}, got)
}

func TestParseCondition_Unsupported(t *testing.T) {
	bad := []string{
		"",
		"age BETWEEN 1 AND 5",
		"name LIKE 'A%'",
		"id IN (1, 2, 3)",
		"age > twenty",
		"age >= 25 AND age <= 30",
	}
	for _, in := range bad {
		_, err := ParseCondition(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrUnsupportedCondition), in)
	}
}

func TestParseSelectList(t *testing.T) {
	items, err := ParseSelectList("name, users.job, COUNT(*), avg( salary ), *")
	require.NoError(t, err)
	assert.Equal(t, []SelectItem{
		{Kind: ItemColumn, Name: "name"},
		{Kind: ItemColumn, Name: "users.job"},
		{Kind: ItemCall, Func: "COUNT", Arg: "*"},
		{Kind: ItemCall, Func: "AVG", Arg: "salary"},
		{Kind: ItemStar},
	}, items)

	_, err = ParseSelectList("")
	require.Error(t, err)
	_, err = ParseSelectList("name,")
	require.Error(t, err)
	_, err = ParseSelectList("SUM(a + b)")
	require.Error(t, err)
}

func TestParse_Dispatch(t *testing.T) {
	st, err := Parse("SELECT name FROM users")
	require.NoError(t, err)
	sel, ok := st.(*SelectStmt)
	require.True(t, ok)
	assert.Equal(t, "users", sel.Query.From)

	st, err = Parse("DELETE FROM users WHERE id = 2")
	require.NoError(t, err)
	_, ok = st.(*DeleteStmt)
	assert.True(t, ok)

	_, err = Parse("UPDATE users SET age = 1")
	require.ErrorIs(t, err, ErrSyntax)

	_, err = Parse("DROP TABLE users")
	require.ErrorIs(t, err, ErrUnsupportedStatement)
	assert.Contains(t, err.Error(), "DROP")

	_, err = Parse("   ")
	require.ErrorIs(t, err, ErrUnsupportedStatement)
}
