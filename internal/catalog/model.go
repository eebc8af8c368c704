package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tuannm99/sqlmission/internal/record"
)

var ErrTableNotFound = errors.New("catalog: table not found")

// Table is a named, ordered sequence of rows.
type Table struct {
	Name    string       `json:"name"`
	Columns []string     `json:"columns"`
	Rows    []record.Row `json:"rows"`
}

// NextID returns max(existing ids)+1, or 1 for an empty table.
func (t *Table) NextID() int64 {
	var maxID int64
	for _, r := range t.Rows {
		if id, ok := r.ID(); ok && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// HasColumn reports whether col belongs to the table schema.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}

func (t *Table) Append(r record.Row) {
	t.Rows = append(t.Rows, r)
}

// Remove deletes every row matching pred and returns the removed rows in table order.
func (t *Table) Remove(pred func(record.Row) bool) []record.Row {
	var removed []record.Row
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		if pred(r) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	// drop references held past the new length
	for i := len(kept); i < len(t.Rows); i++ {
		t.Rows[i] = record.Row{}
	}
	t.Rows = kept
	return removed
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]record.Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// TableSet is a named collection of tables. It is not safe for concurrent use;
// owners serialize access (see sqlmission.Session).
type TableSet struct {
	tables map[string]*Table
}

func NewTableSet(tables ...*Table) *TableSet {
	ts := &TableSet{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		ts.Put(t)
	}
	return ts
}

// Put adds or replaces a table.
func (ts *TableSet) Put(t *Table) {
	if ts.tables == nil {
		ts.tables = make(map[string]*Table)
	}
	ts.tables[strings.ToLower(t.Name)] = t
}

// Table looks a table up case-insensitively.
func (ts *TableSet) Table(name string) (*Table, bool) {
	if ts == nil {
		return nil, false
	}
	t, ok := ts.tables[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Lookup is Table with an ErrTableNotFound error for unknown names.
func (ts *TableSet) Lookup(name string) (*Table, error) {
	t, ok := ts.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, strings.TrimSpace(name))
	}
	return t, nil
}

// Names returns the table names sorted.
func (ts *TableSet) Names() []string {
	out := make([]string, 0, len(ts.tables))
	for _, t := range ts.tables {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of every table.
func (ts *TableSet) Clone() *TableSet {
	out := &TableSet{tables: make(map[string]*Table, len(ts.tables))}
	for k, t := range ts.tables {
		out.tables[k] = t.Clone()
	}
	return out
}
