package executor

import (
	"fmt"
	"strings"

	"github.com/tuannm99/sqlmission/internal/record"
)

// Annotation tags a source row for the result view.
type Annotation string

const (
	AnnotationKept     Annotation = "kept"
	AnnotationFiltered Annotation = "filtered"
	AnnotationNew      Annotation = "new"
	AnnotationUpdated  Annotation = "updated"
	AnnotationDeleted  Annotation = "deleted"
)

// Result is the query result returned to the caller.
type Result struct {
	// Table is the source (SELECT) or target (mutation) table.
	Table   string       `json:"table"`
	Columns []string     `json:"columns"`
	Rows    []record.Row `json:"rows"`

	// Explanation describes what each stage did; never empty on success.
	Explanation string `json:"explanation"`

	// Annotations maps row ids to their status. For SELECT every row of the
	// unjoined source table is present; for mutations only the touched rows.
	Annotations map[int64]Annotation `json:"annotations"`

	IsMutation bool `json:"is_mutation"`
}

// Annotation returns the status of the row with the given id.
func (r *Result) Annotation(id int64) (Annotation, bool) {
	a, ok := r.Annotations[id]
	return a, ok
}

// Count returns how many annotations carry status a.
func (r *Result) Count(a Annotation) int {
	n := 0
	for _, v := range r.Annotations {
		if v == a {
			n++
		}
	}
	return n
}

// explanation collects one sentence per pipeline stage.
type explanation struct {
	parts []string
}

func (x *explanation) add(format string, args ...any) {
	x.parts = append(x.parts, fmt.Sprintf(format, args...))
}

func (x *explanation) String() string { return strings.Join(x.parts, " ") }

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// literal renders a value the way it would be written in SQL.
func literal(v record.Value) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return record.Format(v)
}
