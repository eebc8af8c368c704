package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/record"
	"github.com/tuannm99/sqlmission/internal/sql/parser"
	"github.com/tuannm99/sqlmission/internal/sql/planner"
)

var (
	ErrTableNotFound        = catalog.ErrTableNotFound
	ErrSyntax               = parser.ErrSyntax
	ErrUnsupportedStatement = parser.ErrUnsupportedStatement
	ErrUnsupportedCondition = parser.ErrUnsupportedCondition
	ErrUnknownColumn        = errors.New("unknown column")
)

// maxSubqueryDepth bounds nested IN (SELECT ...) filters.
const maxSubqueryDepth = 8

type Options struct {
	// StrictWhere turns unsupported WHERE/HAVING shapes into
	// ErrUnsupportedCondition instead of leaving rows unfiltered.
	StrictWhere bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Executor runs statements against a table set. It holds no table state;
// callers own the TableSet and serialize access to it.
type Executor struct {
	opts Options
	log  *slog.Logger
}

func NewExecutor(opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Executor{opts: opts, log: log}
}

// Execute is the top-level entry: SQL string -> Result.
// Mutations are applied to tables in place; on error nothing is changed.
func (e *Executor) Execute(query string, tables *catalog.TableSet) (*Result, error) {
	return e.execute(query, tables, 0)
}

func (e *Executor) execute(query string, tables *catalog.TableSet, depth int) (*Result, error) {
	stmt, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}

	plan, err := planner.BuildPlan(stmt)
	if err != nil {
		return nil, err
	}
	return e.execPlan(plan, tables, depth)
}

func (e *Executor) execPlan(p planner.Plan, tables *catalog.TableSet, depth int) (*Result, error) {
	switch plan := p.(type) {
	case *planner.SelectPlan:
		return e.execSelect(plan, tables, depth)
	case *planner.InsertPlan:
		return e.execInsert(plan, tables)
	case *planner.UpdatePlan:
		return e.execUpdate(plan, tables)
	case *planner.DeletePlan:
		return e.execDelete(plan, tables)
	default:
		return nil, fmt.Errorf("executor: unsupported plan type %T", p)
	}
}

func (e *Executor) execInsert(p *planner.InsertPlan, tables *catalog.TableSet) (*Result, error) {
	tbl, err := tables.Lookup(p.TableName)
	if err != nil {
		return nil, err
	}
	for _, c := range p.Columns {
		if !tbl.HasColumn(c) {
			return nil, fmt.Errorf("%w: %s has no column %q", ErrUnknownColumn, tbl.Name, c)
		}
	}

	id := tbl.NextID()
	row := record.NewRow([]string{record.IDColumn}, []record.Value{id})
	for _, col := range tbl.Columns {
		if strings.EqualFold(col, record.IDColumn) {
			continue
		}
		var v record.Value
		for i, c := range p.Columns {
			if strings.EqualFold(c, col) {
				v = p.Values[i]
				break
			}
		}
		row.Set(col, v)
	}
	tbl.Append(row)

	e.log.Debug("executor: insert", "table", tbl.Name, "id", id)
	return &Result{
		Table:       tbl.Name,
		Columns:     row.Columns(),
		Rows:        []record.Row{row.Clone()},
		Explanation: fmt.Sprintf("Inserted 1 row into %s. New id: %d.", tbl.Name, id),
		Annotations: map[int64]Annotation{id: AnnotationNew},
		IsMutation:  true,
	}, nil
}

func (e *Executor) execUpdate(p *planner.UpdatePlan, tables *catalog.TableSet) (*Result, error) {
	tbl, err := tables.Lookup(p.TableName)
	if err != nil {
		return nil, err
	}
	for _, a := range p.Assignments {
		if !tbl.HasColumn(a.Column) {
			return nil, fmt.Errorf("%w: %s has no column %q", ErrUnknownColumn, tbl.Name, a.Column)
		}
	}
	if !tbl.HasColumn(p.Where.Column) {
		return nil, fmt.Errorf("%w: %s has no column %q", ErrUnknownColumn, tbl.Name, p.Where.Column)
	}

	res := &Result{
		Table:       tbl.Name,
		Columns:     append([]string(nil), tbl.Columns...),
		Annotations: make(map[int64]Annotation),
		IsMutation:  true,
	}
	for i := range tbl.Rows {
		if !matches(tbl.Rows[i], p.Where) {
			continue
		}
		for _, a := range p.Assignments {
			tbl.Rows[i].Set(a.Column, a.Value)
		}
		res.Rows = append(res.Rows, tbl.Rows[i].Clone())
		if id, ok := tbl.Rows[i].ID(); ok {
			res.Annotations[id] = AnnotationUpdated
		}
	}

	res.Explanation = fmt.Sprintf("Updated %s in %s where %s.",
		plural(len(res.Rows), "row"), tbl.Name, describe(p.Where))
	e.log.Debug("executor: update", "table", tbl.Name, "rows", len(res.Rows))
	return res, nil
}

func (e *Executor) execDelete(p *planner.DeletePlan, tables *catalog.TableSet) (*Result, error) {
	tbl, err := tables.Lookup(p.TableName)
	if err != nil {
		return nil, err
	}
	if !tbl.HasColumn(p.Where.Column) {
		return nil, fmt.Errorf("%w: %s has no column %q", ErrUnknownColumn, tbl.Name, p.Where.Column)
	}

	removed := tbl.Remove(func(r record.Row) bool { return matches(r, p.Where) })

	res := &Result{
		Table:       tbl.Name,
		Columns:     append([]string(nil), tbl.Columns...),
		Rows:        removed,
		Annotations: make(map[int64]Annotation, len(removed)),
		IsMutation:  true,
	}
	for _, r := range removed {
		if id, ok := r.ID(); ok {
			res.Annotations[id] = AnnotationDeleted
		}
	}

	res.Explanation = fmt.Sprintf("Deleted %s from %s where %s.",
		plural(len(removed), "row"), tbl.Name, describe(p.Where))
	e.log.Debug("executor: delete", "table", tbl.Name, "rows", len(removed))
	return res, nil
}

// matches evaluates a comparison against a row.
func matches(r record.Row, c *parser.Comparison) bool {
	v, _ := r.Get(c.Column)
	return compareValues(v, c.Op, c.Value)
}

// compareValues compares numerically when both sides are numbers and
// case-insensitively otherwise. A quoted number compared with a numeric
// column is read as a number. Ordering a number against text is false.
func compareValues(v record.Value, op parser.Op, lit record.Value) bool {
	if s, ok := lit.(string); ok && record.IsNumeric(v) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			lit = f
		}
	}
	if op == parser.OpEq {
		return record.Equal(v, lit)
	}
	if v == nil || lit == nil || record.IsNumeric(v) != record.IsNumeric(lit) {
		return false
	}

	c := record.Compare(v, lit)
	switch op {
	case parser.OpGt:
		return c > 0
	case parser.OpGte:
		return c >= 0
	case parser.OpLt:
		return c < 0
	case parser.OpLte:
		return c <= 0
	default:
		return false
	}
}

func describe(c *parser.Comparison) string {
	return fmt.Sprintf("%s %s %s", c.Column, c.Op, literal(c.Value))
}
