package planner

import (
	"fmt"
	"strings"

	"github.com/tuannm99/sqlmission/internal/record"
	"github.com/tuannm99/sqlmission/internal/sql/parser"
)

const selectExample = "SELECT name FROM users WHERE age >= 25"

// BuildPlan builds an executable plan from an AST Statement.
// Table names are resolved by the executor, so no catalog is needed here.
func BuildPlan(stmt parser.Statement) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		return buildSelectPlan(s)
	case *parser.InsertStmt:
		return buildInsertPlan(s)
	case *parser.UpdateStmt:
		return buildUpdatePlan(s)
	case *parser.DeleteStmt:
		return buildDeletePlan(s)
	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildInsertPlan(s *parser.InsertStmt) (Plan, error) {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		k := strings.ToLower(c)
		if k == record.IDColumn {
			return nil, fmt.Errorf("%w: id is assigned automatically, leave it out of the column list", parser.ErrSyntax)
		}
		if seen[k] {
			return nil, fmt.Errorf("%w: column %q listed twice", parser.ErrSyntax, c)
		}
		seen[k] = true
	}
	return &InsertPlan{
		TableName: s.TableName,
		Columns:   s.Columns,
		Values:    s.Values,
	}, nil
}

func buildUpdatePlan(s *parser.UpdateStmt) (Plan, error) {
	for _, a := range s.Assignments {
		if strings.EqualFold(a.Column, record.IDColumn) {
			return nil, fmt.Errorf("%w: id cannot be changed", parser.ErrSyntax)
		}
	}
	return &UpdatePlan{
		TableName:   s.TableName,
		Assignments: s.Assignments,
		Where:       s.Where,
	}, nil
}

func buildDeletePlan(s *parser.DeleteStmt) (Plan, error) {
	return &DeletePlan{TableName: s.TableName, Where: s.Where}, nil
}

func buildSelectPlan(s *parser.SelectStmt) (Plan, error) {
	q := s.Query
	if !q.Has(parser.ClauseFrom) {
		return nil, fmt.Errorf("%w: missing FROM <table>. Example: %s", parser.ErrSyntax, selectExample)
	}

	items, err := parser.ParseSelectList(q.Select)
	if err != nil {
		return nil, err
	}

	p := &SelectPlan{
		Table: q.From,
		Items: items,
		Limit: NoLimit,
	}

	var plain, star bool
	for _, it := range items {
		switch it.Kind {
		case parser.ItemCall:
			agg, err := aggregateOf(it)
			if err != nil {
				return nil, err
			}
			p.Aggregates = append(p.Aggregates, agg)
		case parser.ItemStar:
			star = true
		case parser.ItemColumn:
			plain = true
		}
	}

	if q.Has(parser.ClauseJoin) {
		p.Join = &JoinSpec{Table: q.Join.Table, Condition: q.Join.Condition}
	}

	if q.Has(parser.ClauseWhere) {
		p.FilterText = q.Where
		p.Filter, p.FilterErr = parser.ParseCondition(q.Where)
	}

	if q.Has(parser.ClauseGroupBy) {
		p.GroupBy = q.GroupBy
		if star {
			return nil, fmt.Errorf("%w: SELECT * cannot be combined with GROUP BY", parser.ErrSyntax)
		}
		for _, it := range items {
			if it.Kind == parser.ItemColumn && !strings.EqualFold(it.Name, p.GroupBy) {
				return nil, fmt.Errorf("%w: column %q must appear in GROUP BY or inside an aggregate", parser.ErrSyntax, it.Name)
			}
		}
	} else if len(p.Aggregates) > 0 && (plain || star) {
		return nil, fmt.Errorf("%w: mixing aggregates and plain columns needs GROUP BY", parser.ErrSyntax)
	}

	if q.Has(parser.ClauseHaving) {
		p.HavingText = q.Having
		p.Having, p.HavingErr = buildHaving(q.Having, p.Grouped())
	}

	if q.Has(parser.ClauseOrderBy) {
		ob := q.OrderBy
		p.Order = &ob
		if strings.Contains(ob.Column, "(") {
			items, err := parser.ParseSelectList(ob.Column)
			if err != nil || len(items) != 1 || items[0].Kind != parser.ItemCall {
				return nil, fmt.Errorf("%w: invalid ORDER BY %s", parser.ErrSyntax, ob.Column)
			}
			agg, err := aggregateOf(items[0])
			if err != nil {
				return nil, err
			}
			if !p.Grouped() {
				return nil, fmt.Errorf("%w: ORDER BY %s needs GROUP BY", parser.ErrSyntax, agg.Name())
			}
			p.OrderAgg = &agg
		}
	}
	if q.Has(parser.ClauseLimit) {
		p.Limit = q.Limit
	}

	return p, nil
}

func aggregateOf(it parser.SelectItem) (Aggregate, error) {
	fn, ok := ParseAggFunc(it.Func)
	if !ok {
		return Aggregate{}, fmt.Errorf("%w: unsupported function %s (use COUNT, SUM, AVG, MAX or MIN)", parser.ErrSyntax, it.Func)
	}
	if it.Arg == "*" && fn != AggCount {
		return Aggregate{}, fmt.Errorf("%w: %s(*) is not valid, name a column", parser.ErrSyntax, fn)
	}
	return Aggregate{Func: fn, Arg: it.Arg}, nil
}

// buildHaving accepts "<aggregate> {>|>=|<|<=} <number>".
func buildHaving(text string, grouped bool) (*HavingSpec, error) {
	if !grouped {
		return nil, fmt.Errorf("%w: HAVING requires GROUP BY", parser.ErrUnsupportedCondition)
	}

	cond, err := parser.ParseCondition(text)
	if err != nil {
		return nil, err
	}
	cmp, ok := cond.(*parser.Comparison)
	if !ok || cmp.Op == parser.OpEq || !record.IsNumeric(cmp.Value) {
		return nil, fmt.Errorf("%w: HAVING supports <aggregate> >, >=, <, <= <number>", parser.ErrUnsupportedCondition)
	}

	items, err := parser.ParseSelectList(cmp.Column)
	if err != nil || len(items) != 1 || items[0].Kind != parser.ItemCall {
		return nil, fmt.Errorf("%w: HAVING must compare an aggregate such as COUNT(*)", parser.ErrUnsupportedCondition)
	}
	agg, err := aggregateOf(items[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parser.ErrUnsupportedCondition, err)
	}

	return &HavingSpec{Agg: agg, Op: cmp.Op, Value: cmp.Value}, nil
}
