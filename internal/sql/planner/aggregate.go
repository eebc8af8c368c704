package planner

import (
	"math"
	"strings"

	"github.com/tuannm99/sqlmission/internal/record"
)

// AggFunc is one of the supported aggregate functions.
type AggFunc uint8

const (
	AggCount AggFunc = iota + 1
	AggSum
	AggAvg
	AggMax
	AggMin
)

var aggNames = map[AggFunc]string{
	AggCount: "COUNT",
	AggSum:   "SUM",
	AggAvg:   "AVG",
	AggMax:   "MAX",
	AggMin:   "MIN",
}

func (f AggFunc) String() string {
	if n, ok := aggNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseAggFunc maps a function name onto an AggFunc.
func ParseAggFunc(name string) (AggFunc, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "COUNT":
		return AggCount, true
	case "SUM":
		return AggSum, true
	case "AVG":
		return AggAvg, true
	case "MAX":
		return AggMax, true
	case "MIN":
		return AggMin, true
	default:
		return 0, false
	}
}

// Apply folds values into the aggregate result. nil values are skipped.
//
//	COUNT -> int64 number of non-nil values
//	SUM   -> int64 when every input is int64, float64 otherwise; 0 for no input
//	AVG   -> float64 rounded to 2 decimals; nil for no numeric input
//	MAX   -> largest value as stored; nil for no input
//	MIN   -> smallest value as stored; nil for no input
//
// SUM and AVG ignore non-numeric values.
func (f AggFunc) Apply(values []record.Value) record.Value {
	switch f {
	case AggCount:
		var n int64
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return n

	case AggSum:
		var (
			isum  int64
			fsum  float64
			float bool
		)
		for _, v := range values {
			switch x := v.(type) {
			case int64:
				isum += x
				fsum += float64(x)
			case float64:
				fsum += x
				float = true
			}
		}
		if float {
			return fsum
		}
		return isum

	case AggAvg:
		var (
			sum float64
			n   int
		)
		for _, v := range values {
			if x, ok := record.Number(v); ok {
				sum += x
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return round2(sum / float64(n))

	case AggMax, AggMin:
		var best record.Value
		for _, v := range values {
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := record.Compare(v, best)
			if (f == AggMax && c > 0) || (f == AggMin && c < 0) {
				best = v
			}
		}
		return best
	}
	return nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Aggregate is an aggregate call from a select list or HAVING clause.
type Aggregate struct {
	Func AggFunc
	// Arg is the column name, or "*" for COUNT(*).
	Arg string
}

// Name is the output column name, e.g. COUNT(*) or SUM(salary).
func (a Aggregate) Name() string {
	return a.Func.String() + "(" + a.Arg + ")"
}

// Eval applies the aggregate to rows, reading column col (ignored for "*").
func (a Aggregate) Eval(rows []record.Row, col string) record.Value {
	values := make([]record.Value, 0, len(rows))
	for _, r := range rows {
		if a.Arg == "*" {
			values = append(values, int64(1))
			continue
		}
		v, _ := r.Get(col)
		values = append(values, v)
	}
	return a.Func.Apply(values)
}
