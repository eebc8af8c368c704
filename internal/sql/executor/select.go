package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/record"
	"github.com/tuannm99/sqlmission/internal/sql/parser"
	"github.com/tuannm99/sqlmission/internal/sql/planner"
)

// tracked is a pipeline row plus the ids of the source rows it came from.
type tracked struct {
	row  record.Row
	from []int64
}

// scope is the set of columns visible at a pipeline stage.
type scope struct {
	table string
	cols  []string
}

// resolve maps a column reference onto a visible column. A reference
// qualified with the source table name ("users.name") also matches the
// unqualified column.
func (s *scope) resolve(col string) (string, bool) {
	col = strings.TrimSpace(col)
	for _, c := range s.cols {
		if strings.EqualFold(c, col) {
			return c, true
		}
	}
	prefix := s.table + "."
	if len(col) > len(prefix) && strings.EqualFold(col[:len(prefix)], prefix) {
		rest := col[len(prefix):]
		for _, c := range s.cols {
			if strings.EqualFold(c, rest) {
				return c, true
			}
		}
	}
	return "", false
}

func (s *scope) lookup(col, clause string) (string, error) {
	c, ok := s.resolve(col)
	if !ok {
		return "", fmt.Errorf("%w: %q in %s (available: %s)", ErrUnknownColumn, col, clause, strings.Join(s.cols, ", "))
	}
	return c, nil
}

func (e *Executor) execSelect(p *planner.SelectPlan, tables *catalog.TableSet, depth int) (*Result, error) {
	src, err := tables.Lookup(p.Table)
	if err != nil {
		return nil, err
	}

	var ex explanation
	rows := make([]tracked, 0, len(src.Rows))
	for _, r := range src.Rows {
		t := tracked{row: r.Clone()}
		if id, ok := r.ID(); ok {
			t.from = []int64{id}
		}
		rows = append(rows, t)
	}
	sc := &scope{table: src.Name, cols: append([]string(nil), src.Columns...)}

	if p.Join != nil {
		if rows, err = e.join(rows, src, p.Join, tables, sc, &ex); err != nil {
			return nil, err
		}
	}

	if p.FilterText != "" {
		if rows, err = e.filter(rows, p, tables, sc, depth, &ex); err != nil {
			return nil, err
		}
	}

	if p.Grouped() {
		if rows, err = e.group(rows, p, sc, &ex); err != nil {
			return nil, err
		}
		if rows, err = e.having(rows, p, &ex); err != nil {
			return nil, err
		}
	} else if p.HavingText != "" {
		if _, err = e.having(rows, p, &ex); err != nil {
			return nil, err
		}
	}

	if p.Order != nil {
		if err = orderRows(rows, p.Order, sc, &ex); err != nil {
			return nil, err
		}
	}

	if p.Limit != planner.NoLimit && p.Limit < len(rows) {
		rows = rows[:p.Limit]
		ex.add("Limited to the first %s.", plural(p.Limit, "row"))
	}

	if p.Scalar() {
		if rows, err = aggregate(rows, p, sc, &ex); err != nil {
			return nil, err
		}
	}

	out, cols, err := project(rows, p, sc)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Table:       src.Name,
		Columns:     cols,
		Rows:        out,
		Annotations: annotate(src, rows),
	}
	if len(ex.parts) == 0 {
		ex.add("Selected %s from %s.", plural(len(out), "row"), src.Name)
	} else {
		ex.add("Result: %s.", plural(len(out), "row"))
	}
	res.Explanation = ex.String()

	e.log.Debug("executor: select", "table", src.Name, "rows", len(out), "depth", depth)
	return res, nil
}

// join performs an inner join on the key inferred from *_id column names.
func (e *Executor) join(rows []tracked, left *catalog.Table, j *planner.JoinSpec, tables *catalog.TableSet, sc *scope, ex *explanation) ([]tracked, error) {
	right, err := tables.Lookup(j.Table)
	if err != nil {
		return nil, err
	}
	for _, c := range right.Columns {
		if !strings.EqualFold(c, record.IDColumn) {
			sc.cols = append(sc.cols, right.Name+"."+c)
		}
	}

	lk, rk, ok := joinKeys(left, right)
	if !ok {
		e.log.Warn("executor: no key relationship for join", "left", left.Name, "right", right.Name)
		ex.add("No key links %s and %s, so the join produced no rows.", left.Name, right.Name)
		return nil, nil
	}

	var out []tracked
	for _, l := range rows {
		lv, _ := l.row.Get(lk)
		if lv == nil {
			continue
		}
		for _, r := range right.Rows {
			rv, _ := r.Get(rk)
			if !record.Equal(lv, rv) {
				continue
			}
			merged := l.row.Clone()
			for _, c := range r.Columns() {
				if strings.EqualFold(c, record.IDColumn) {
					continue
				}
				v, _ := r.Get(c)
				merged.Set(right.Name+"."+c, v)
			}
			out = append(out, tracked{row: merged, from: l.from})
		}
	}

	ex.add("Joined %s with %s on %s.%s = %s.%s: %s.",
		left.Name, right.Name, left.Name, lk, right.Name, rk, plural(len(out), "row"))
	return out, nil
}

// joinKeys finds <singular(right)>_id on the left table or
// <singular(left)>_id on the right table.
func joinKeys(left, right *catalog.Table) (string, string, bool) {
	if fk := singular(right.Name) + "_id"; left.HasColumn(fk) && right.HasColumn(record.IDColumn) {
		return fk, record.IDColumn, true
	}
	if fk := singular(left.Name) + "_id"; right.HasColumn(fk) && left.HasColumn(record.IDColumn) {
		return record.IDColumn, fk, true
	}
	return "", "", false
}

func singular(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, "ies"):
		return n[:len(n)-3] + "y"
	case strings.HasSuffix(n, "s"):
		return n[:len(n)-1]
	default:
		return n
	}
}

func (e *Executor) filter(rows []tracked, p *planner.SelectPlan, tables *catalog.TableSet, sc *scope, depth int, ex *explanation) ([]tracked, error) {
	switch c := p.Filter.(type) {
	case *parser.Comparison:
		col, ok := sc.resolve(c.Column)
		if !ok {
			return e.unknownFilterColumn(c.Column, sc, ex)
		}
		var out []tracked
		for _, t := range rows {
			v, _ := t.row.Get(col)
			if compareValues(v, c.Op, c.Value) {
				out = append(out, t)
			}
		}
		ex.add("Filtered on %s: %s of %d matched.", describe(c), plural(len(out), "row"), len(rows))
		return out, nil

	case *parser.InSubquery:
		col, ok := sc.resolve(c.Column)
		if !ok {
			return e.unknownFilterColumn(c.Column, sc, ex)
		}
		values, err := e.subquery(c.Query, tables, depth+1)
		if err != nil {
			return nil, err
		}
		var out []tracked
		for _, t := range rows {
			v, _ := t.row.Get(col)
			for _, sv := range values {
				if v != nil && record.Equal(v, sv) {
					out = append(out, t)
					break
				}
			}
		}
		ex.add("Filtered on %s IN (%s), which returned %s: %s matched.",
			c.Column, c.Query, plural(len(values), "value"), plural(len(out), "row"))
		return out, nil
	}

	if e.opts.StrictWhere {
		return nil, fmt.Errorf("WHERE %s: %w", p.FilterText, p.FilterErr)
	}
	e.log.Warn("executor: unsupported WHERE, rows left unfiltered", "where", p.FilterText, "err", p.FilterErr)
	ex.add("Could not apply WHERE %s (only a single =, >, >=, <, <= comparison or IN (SELECT ...) is supported), so no rows were filtered.", p.FilterText)
	return rows, nil
}

func (e *Executor) unknownFilterColumn(col string, sc *scope, ex *explanation) ([]tracked, error) {
	if e.opts.StrictWhere {
		_, err := sc.lookup(col, "WHERE")
		return nil, err
	}
	e.log.Warn("executor: WHERE on unknown column", "column", col, "table", sc.table)
	ex.add("Column %s does not exist in %s, so no rows matched the filter.", col, sc.table)
	return nil, nil
}

// subquery runs a nested SELECT and returns its single column of values.
func (e *Executor) subquery(query string, tables *catalog.TableSet, depth int) ([]record.Value, error) {
	if depth > maxSubqueryDepth {
		return nil, fmt.Errorf("%w: subqueries nested deeper than %d levels", ErrSyntax, maxSubqueryDepth)
	}
	res, err := e.execute(query, tables, depth)
	if err != nil {
		return nil, fmt.Errorf("subquery: %w", err)
	}
	if len(res.Columns) != 1 {
		return nil, fmt.Errorf("%w: subquery must select exactly one column, got %d", ErrSyntax, len(res.Columns))
	}
	values := make([]record.Value, 0, len(res.Rows))
	for _, r := range res.Rows {
		v, _ := r.Get(res.Columns[0])
		values = append(values, v)
	}
	return values, nil
}

type bucket struct {
	value record.Value
	rows  []record.Row
	from  []int64
}

// group partitions rows by the GROUP BY column and computes every measure
// per partition, in first-seen order of the group values.
func (e *Executor) group(rows []tracked, p *planner.SelectPlan, sc *scope, ex *explanation) ([]tracked, error) {
	key, err := sc.lookup(p.GroupBy, "GROUP BY")
	if err != nil {
		return nil, err
	}

	measures := p.Measures()
	args := make([]string, len(measures))
	for i, m := range measures {
		if m.Arg == "*" {
			continue
		}
		if args[i], err = sc.lookup(m.Arg, m.Name()); err != nil {
			return nil, err
		}
	}

	index := make(map[string]int)
	var buckets []*bucket
	for _, t := range rows {
		v, _ := t.row.Get(key)
		k := groupKey(v)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, &bucket{value: v})
		}
		b := buckets[i]
		b.rows = append(b.rows, t.row)
		b.from = append(b.from, t.from...)
	}

	cols := []string{p.GroupBy}
	for _, m := range measures {
		cols = append(cols, m.Name())
	}

	out := make([]tracked, 0, len(buckets))
	for _, b := range buckets {
		vals := []record.Value{b.value}
		for i, m := range measures {
			vals = append(vals, m.Eval(b.rows, args[i]))
		}
		out = append(out, tracked{row: record.NewRow(cols, vals), from: b.from})
	}

	sc.cols = cols
	ex.add("Grouped %s by %s into %s.", plural(len(rows), "row"), p.GroupBy, plural(len(out), "group"))
	return out, nil
}

func groupKey(v record.Value) string {
	if v == nil {
		return "\x00null"
	}
	if f, ok := record.Number(v); ok {
		return "n:" + record.Format(f)
	}
	return "s:" + strings.ToLower(record.Format(v))
}

func (e *Executor) having(groups []tracked, p *planner.SelectPlan, ex *explanation) ([]tracked, error) {
	if p.Having == nil {
		if p.HavingText == "" {
			return groups, nil
		}
		if e.opts.StrictWhere {
			return nil, fmt.Errorf("HAVING %s: %w", p.HavingText, p.HavingErr)
		}
		e.log.Warn("executor: unsupported HAVING, groups left unfiltered", "having", p.HavingText, "err", p.HavingErr)
		ex.add("Could not apply HAVING %s (only <aggregate> >, >=, <, <= <number> after GROUP BY is supported), so no groups were dropped.", p.HavingText)
		return groups, nil
	}

	name := p.Having.Agg.Name()
	var out []tracked
	for _, g := range groups {
		v, _ := g.row.Get(name)
		if compareValues(v, p.Having.Op, p.Having.Value) {
			out = append(out, g)
		}
	}
	ex.add("Kept groups where %s %s %s: %s of %d.",
		name, p.Having.Op, record.Format(p.Having.Value), plural(len(out), "group"), len(groups))
	return out, nil
}

// orderRows sorts in place; ties keep their relative order.
func orderRows(rows []tracked, o *parser.OrderByClause, sc *scope, ex *explanation) error {
	col, err := sc.lookup(o.Column, "ORDER BY")
	if err != nil {
		return err
	}
	desc := o.Direction == parser.Desc
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].row.Get(col)
		b, _ := rows[j].row.Get(col)
		if desc {
			return record.Compare(a, b) > 0
		}
		return record.Compare(a, b) < 0
	})

	dir := "ascending"
	if desc {
		dir = "descending"
	}
	ex.add("Sorted by %s %s.", o.Column, dir)
	return nil
}

// aggregate collapses rows into a single row of scalar aggregates.
func aggregate(rows []tracked, p *planner.SelectPlan, sc *scope, ex *explanation) ([]tracked, error) {
	plain := make([]record.Row, len(rows))
	var from []int64
	for i, t := range rows {
		plain[i] = t.row
		from = append(from, t.from...)
	}

	cols := make([]string, 0, len(p.Aggregates))
	vals := make([]record.Value, 0, len(p.Aggregates))
	for _, a := range p.Aggregates {
		col := ""
		if a.Arg != "*" {
			var err error
			if col, err = sc.lookup(a.Arg, a.Name()); err != nil {
				return nil, err
			}
		}
		v := a.Eval(plain, col)
		cols = append(cols, a.Name())
		vals = append(vals, v)
		ex.add("%s over %s = %s.", a.Name(), plural(len(rows), "row"), record.Format(v))
	}

	sc.cols = cols
	return []tracked{{row: record.NewRow(cols, vals), from: from}}, nil
}

// project applies the select list. Output columns are named as written;
// a column selected twice is kept once.
func project(rows []tracked, p *planner.SelectPlan, sc *scope) ([]record.Row, []string, error) {
	var names, src []string
	seen := make(map[string]bool)
	add := func(name, col string) {
		k := strings.ToLower(name)
		if seen[k] {
			return
		}
		seen[k] = true
		names = append(names, name)
		src = append(src, col)
	}

	aggs := p.Aggregates
	for _, it := range p.Items {
		switch it.Kind {
		case parser.ItemStar:
			for _, c := range sc.cols {
				add(c, c)
			}
		case parser.ItemColumn:
			c, err := sc.lookup(it.Name, "SELECT")
			if err != nil {
				return nil, nil, err
			}
			add(it.Name, c)
		case parser.ItemCall:
			name := aggs[0].Name()
			aggs = aggs[1:]
			add(name, name)
		}
	}

	out := make([]record.Row, 0, len(rows))
	for _, t := range rows {
		vals := make([]record.Value, len(src))
		for i, c := range src {
			vals[i], _ = t.row.Get(c)
		}
		out = append(out, record.NewRow(names, vals))
	}
	return out, names, nil
}

// annotate marks every source row kept when it contributed to a final row.
func annotate(src *catalog.Table, rows []tracked) map[int64]Annotation {
	used := make(map[int64]bool)
	for _, t := range rows {
		for _, id := range t.from {
			used[id] = true
		}
	}
	out := make(map[int64]Annotation, len(src.Rows))
	for _, r := range src.Rows {
		id, ok := r.ID()
		if !ok {
			continue
		}
		if used[id] {
			out[id] = AnnotationKept
		} else {
			out[id] = AnnotationFiltered
		}
	}
	return out
}
