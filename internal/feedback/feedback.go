// Package feedback grades a submitted query against an expected query,
// clause by clause.
package feedback

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tuannm99/sqlmission/internal/sql/parser"
)

const emptySuggestion = "Enter your SQL query"

type Options struct {
	// CompareJoin also grades the JOIN clause. Off by default: only
	// SELECT, FROM, WHERE, ORDER BY, GROUP BY and LIMIT are graded.
	CompareJoin bool
}

// CorrectClause is a clause that matched the expected query.
type CorrectClause struct {
	Clause  string `json:"clause"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// IncorrectClause is a clause that was missing, wrong or not needed.
// Expected is nil when the clause should be removed; Actual is nil when
// the clause is missing from the submission.
type IncorrectClause struct {
	Clause   string  `json:"clause"`
	Expected *string `json:"expected"`
	Actual   *string `json:"actual"`
	Message  string  `json:"message"`
	Hint     string  `json:"hint"`
}

type Report struct {
	IsCorrect        bool              `json:"is_correct"`
	CorrectClauses   []CorrectClause   `json:"correct_clauses"`
	IncorrectClauses []IncorrectClause `json:"incorrect_clauses"`
	Suggestions      []string          `json:"suggestions"`
	Submitted        string            `json:"submitted"`
	Expected         string            `json:"expected"`
}

// Incorrect returns the incorrect entry for clause k, if any.
func (r *Report) Incorrect(k parser.ClauseKind) (IncorrectClause, bool) {
	for _, c := range r.IncorrectClauses {
		if c.Clause == k.String() {
			return c, true
		}
	}
	return IncorrectClause{}, false
}

// graded lists the clause kinds in report order.
func graded(opts Options) []parser.ClauseKind {
	kinds := []parser.ClauseKind{parser.ClauseSelect, parser.ClauseFrom}
	if opts.CompareJoin {
		kinds = append(kinds, parser.ClauseJoin)
	}
	return append(kinds, parser.ClauseWhere, parser.ClauseOrderBy, parser.ClauseGroupBy, parser.ClauseLimit)
}

// Diff compares submitted against expected. Both are tokenized independently
// and each clause present in expected is compared after normalization
// (lowercase, no whitespace, no quote characters).
func Diff(submitted, expected string, opts Options) *Report {
	r := &Report{
		CorrectClauses:   []CorrectClause{},
		IncorrectClauses: []IncorrectClause{},
		Suggestions:      []string{},
		Submitted:        strings.TrimSpace(submitted),
		Expected:         strings.TrimSpace(expected),
	}
	if r.Submitted == "" || r.Expected == "" {
		r.Suggestions = append(r.Suggestions, emptySuggestion)
		return r
	}

	got := parser.Tokenize(submitted)
	want := parser.Tokenize(expected)

	for _, k := range graded(opts) {
		r.compare(k, got, want)
	}

	switch n := len(r.IncorrectClauses); {
	case n == 1:
		r.Suggestions = append(r.Suggestions,
			fmt.Sprintf("Fix the %s part of your query", r.IncorrectClauses[0].Clause))
	case n > 1:
		parts := make([]string, n)
		for i, c := range r.IncorrectClauses {
			parts[i] = c.Clause
		}
		r.Suggestions = append(r.Suggestions, "Fix these parts: "+strings.Join(parts, ", "))
	}

	r.IsCorrect = len(r.IncorrectClauses) == 0 && len(r.CorrectClauses) > 0
	return r
}

func (r *Report) compare(k parser.ClauseKind, got, want *parser.ParsedQuery) {
	m := messages[k]
	if !want.Has(k) {
		if k == parser.ClauseWhere && got.Has(k) {
			actual := got.Raw(k)
			r.IncorrectClauses = append(r.IncorrectClauses, IncorrectClause{
				Clause:  k.String(),
				Actual:  &actual,
				Message: "WHERE is not needed for this task",
				Hint:    "Remove the WHERE clause from your query",
			})
		}
		return
	}

	expected := want.Raw(k)
	if !got.Has(k) {
		r.IncorrectClauses = append(r.IncorrectClauses, IncorrectClause{
			Clause:   k.String(),
			Expected: &expected,
			Message:  m.missing,
			Hint:     m.add,
		})
		return
	}

	actual := got.Raw(k)
	if same(k, got, want) {
		r.CorrectClauses = append(r.CorrectClauses, CorrectClause{
			Clause:  k.String(),
			Value:   actual,
			Message: m.correct,
		})
		return
	}
	r.IncorrectClauses = append(r.IncorrectClauses, IncorrectClause{
		Clause:   k.String(),
		Expected: &expected,
		Actual:   &actual,
		Message:  m.wrong,
		Hint:     hint(k, got, want),
	})
}

func same(k parser.ClauseKind, got, want *parser.ParsedQuery) bool {
	switch k {
	case parser.ClauseOrderBy:
		return normalize(got.OrderBy.Column) == normalize(want.OrderBy.Column) &&
			got.OrderBy.Direction == want.OrderBy.Direction
	case parser.ClauseLimit:
		return got.Limit == want.Limit
	default:
		return normalize(got.Raw(k)) == normalize(want.Raw(k))
	}
}

// normalize lowercases s and drops whitespace and quote characters.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' || r == '"' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

type clauseMessages struct {
	correct string
	missing string
	wrong   string
	add     string
}

var messages = map[parser.ClauseKind]clauseMessages{
	parser.ClauseSelect: {
		correct: "Column selection is correct",
		missing: "SELECT clause not found",
		wrong:   "Wrong columns selected",
		add:     "Add a SELECT clause with the columns you need",
	},
	parser.ClauseFrom: {
		correct: "Table is correct",
		missing: "FROM clause not found",
		wrong:   "Wrong table",
		add:     "Add a FROM clause with the table name",
	},
	parser.ClauseJoin: {
		correct: "Join is correct",
		missing: "JOIN clause not found",
		wrong:   "Wrong JOIN",
		add:     "Add a JOIN to combine the tables",
	},
	parser.ClauseWhere: {
		correct: "Filter condition is correct",
		missing: "WHERE clause not found",
		wrong:   "Wrong WHERE condition",
		add:     "Add a WHERE clause to filter the rows",
	},
	parser.ClauseOrderBy: {
		correct: "Sort order is correct",
		missing: "ORDER BY clause not found",
		wrong:   "Wrong ORDER BY",
		add:     "Add ORDER BY to sort the result",
	},
	parser.ClauseGroupBy: {
		correct: "Grouping is correct",
		missing: "GROUP BY clause not found",
		wrong:   "Wrong GROUP BY",
		add:     "Add GROUP BY to group the rows",
	},
	parser.ClauseLimit: {
		correct: "Row limit is correct",
		missing: "LIMIT clause not found",
		wrong:   "Wrong LIMIT value",
		add:     "Add LIMIT to cap the number of rows",
	},
}

// hint explains how to fix a clause that is present but wrong.
func hint(k parser.ClauseKind, got, want *parser.ParsedQuery) string {
	switch k {
	case parser.ClauseSelect:
		if strings.TrimSpace(want.Select) == "*" {
			return "Use * to select every column"
		}
		return "Select the right columns: " + want.Select
	case parser.ClauseFrom:
		return fmt.Sprintf("Use the table '%s'", want.From)
	case parser.ClauseJoin:
		return fmt.Sprintf("JOIN the table %s ON %s", want.Join.Table, want.Join.Condition)
	case parser.ClauseWhere:
		return whereHint(normalize(got.Where), normalize(want.Where), want.Where)
	case parser.ClauseOrderBy:
		if normalize(got.OrderBy.Column) == normalize(want.OrderBy.Column) {
			return fmt.Sprintf("Right column, but sort %s instead of %s", want.OrderBy.Direction, got.OrderBy.Direction)
		}
		return fmt.Sprintf("Sort by %s %s", want.OrderBy.Column, want.OrderBy.Direction)
	case parser.ClauseGroupBy:
		return "Group by " + want.GroupBy
	case parser.ClauseLimit:
		return "Limit the result to " + strconv.Itoa(want.Limit) + " rows"
	default:
		return "Check this part again"
	}
}

// whereHint singles out the inclusive/exclusive comparison mix-up.
func whereHint(got, want, raw string) string {
	switch {
	case strings.Contains(want, ">=") && strings.Contains(got, ">") && !strings.Contains(got, ">="):
		return "Use >= (greater than or equal to), not just >"
	case strings.Contains(got, ">=") && strings.Contains(want, ">") && !strings.Contains(want, ">="):
		return "Use > (strictly greater than), not >="
	case strings.Contains(want, "<=") && strings.Contains(got, "<") && !strings.Contains(got, "<="):
		return "Use <= (less than or equal to), not just <"
	case strings.Contains(got, "<=") && strings.Contains(want, "<") && !strings.Contains(want, "<="):
		return "Use < (strictly less than), not <="
	default:
		return "The correct condition is: WHERE " + raw
	}
}
