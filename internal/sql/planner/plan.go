package planner

import (
	"strings"

	"github.com/tuannm99/sqlmission/internal/record"
	"github.com/tuannm99/sqlmission/internal/sql/parser"
)

// Plan is the interface for executable plans.
type Plan interface {
	planNode()
}

// NoLimit marks a SelectPlan without a LIMIT clause.
const NoLimit = -1

// ----- Plan nodes -----

type JoinSpec struct {
	Table     string
	Condition string
}

// HavingSpec filters groups on an aggregate.
type HavingSpec struct {
	Agg   Aggregate
	Op    parser.Op
	Value record.Value
}

// SelectPlan runs the query pipeline:
// source -> join -> filter -> group -> having -> order -> limit -> projection.
type SelectPlan struct {
	Table string
	Join  *JoinSpec

	// Filter is nil when there is no WHERE clause or it could not be parsed;
	// FilterText and FilterErr tell the two apart.
	Filter     parser.Condition
	FilterText string
	FilterErr  error

	GroupBy string

	Having     *HavingSpec
	HavingText string
	HavingErr  error

	Order *parser.OrderByClause
	// OrderAgg is set when ORDER BY names an aggregate such as COUNT(*).
	OrderAgg *Aggregate
	Limit    int

	Items      []parser.SelectItem
	Aggregates []Aggregate
}

func (*SelectPlan) planNode() {}

// Grouped reports whether the plan partitions rows.
func (p *SelectPlan) Grouped() bool { return p.GroupBy != "" }

// Scalar reports whether the plan collapses its rows into one aggregate row.
func (p *SelectPlan) Scalar() bool { return !p.Grouped() && len(p.Aggregates) > 0 }

// Measures lists every aggregate a grouped plan computes per group: the
// select list first, then the HAVING and ORDER BY aggregates if not already
// selected.
func (p *SelectPlan) Measures() []Aggregate {
	out := append([]Aggregate(nil), p.Aggregates...)
	add := func(a Aggregate) {
		for _, m := range out {
			if strings.EqualFold(m.Name(), a.Name()) {
				return
			}
		}
		out = append(out, a)
	}
	if p.Having != nil {
		add(p.Having.Agg)
	}
	if p.OrderAgg != nil {
		add(*p.OrderAgg)
	}
	return out
}

type InsertPlan struct {
	TableName string
	Columns   []string
	Values    []record.Value
}

func (*InsertPlan) planNode() {}

type UpdatePlan struct {
	TableName   string
	Assignments []parser.Assignment
	Where       *parser.Comparison
}

func (*UpdatePlan) planNode() {}

type DeletePlan struct {
	TableName string
	Where     *parser.Comparison
}

func (*DeletePlan) planNode() {}
