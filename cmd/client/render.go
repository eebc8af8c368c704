package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tuannm99/sqlmission/internal/feedback"
	"github.com/tuannm99/sqlmission/internal/record"
	"github.com/tuannm99/sqlmission/internal/sql/executor"
)

type styles struct {
	ok    lipgloss.Style
	bad   lipgloss.Style
	hint  lipgloss.Style
	muted lipgloss.Style
	panel lipgloss.Style
}

// newStyles binds styles to w so colour is dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		hint:  r.NewStyle().Foreground(lipgloss.Color("3")),
		muted: r.NewStyle().Faint(true),
		panel: r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func renderResult(w io.Writer, st styles, res *executor.Result) {
	if res.IsMutation {
		renderMutation(w, st, res)
	} else {
		renderRows(w, res.Columns, res.Rows, nil)
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
	}
	if res.Explanation != "" {
		_, _ = fmt.Fprintln(w, st.muted.Render(res.Explanation))
	}
	if !res.IsMutation && len(res.Annotations) > 0 {
		_, _ = fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("%s: %d kept, %d filtered",
			res.Table, res.Count(executor.AnnotationKept), res.Count(executor.AnnotationFiltered))))
	}
}

// renderMutation lists the touched rows with their status.
func renderMutation(w io.Writer, st styles, res *executor.Result) {
	status := func(row record.Row) string {
		id, ok := row.ID()
		if !ok {
			return ""
		}
		a, _ := res.Annotation(id)
		return string(a)
	}

	touched := make([]record.Row, 0, len(res.Annotations))
	for _, row := range res.Rows {
		if id, ok := row.ID(); ok {
			if _, ok := res.Annotations[id]; ok {
				touched = append(touched, row)
			}
		}
	}
	if len(touched) > 0 {
		renderRows(w, res.Columns, touched, status)
	}
	_, _ = fmt.Fprintln(w, st.ok.Render(fmt.Sprintf("OK %s: %d new, %d updated, %d deleted",
		res.Table,
		res.Count(executor.AnnotationNew),
		res.Count(executor.AnnotationUpdated),
		res.Count(executor.AnnotationDeleted))))
}

func renderRows(w io.Writer, cols []string, rows []record.Row, status func(record.Row) string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(cols)+1)
	for _, c := range cols {
		header = append(header, c)
	}
	if status != nil {
		header = append(header, "status")
	}
	t.AppendHeader(header)

	for _, row := range rows {
		out := make(table.Row, 0, len(cols)+1)
		for _, c := range cols {
			v, _ := row.Get(c)
			out = append(out, record.Format(v))
		}
		if status != nil {
			out = append(out, status(row))
		}
		t.AppendRow(out)
	}
	t.Render()
}

func renderReport(w io.Writer, st styles, rep *feedback.Report) {
	var b strings.Builder
	if rep.IsCorrect {
		b.WriteString(st.ok.Render("Correct!"))
	} else {
		b.WriteString(st.bad.Render("Not quite"))
	}

	for _, c := range rep.CorrectClauses {
		fmt.Fprintf(&b, "\n%s %-8s %s", st.ok.Render("+"), c.Clause, c.Value)
	}
	for _, c := range rep.IncorrectClauses {
		fmt.Fprintf(&b, "\n%s %-8s %s", st.bad.Render("x"), c.Clause, c.Message)
		if c.Hint != "" {
			fmt.Fprintf(&b, "\n           %s", st.hint.Render(c.Hint))
		}
	}
	for _, s := range rep.Suggestions {
		fmt.Fprintf(&b, "\n%s", st.hint.Render(s))
	}
	_, _ = fmt.Fprintln(w, st.panel.Render(b.String()))
}

func renderTables(w io.Writer, tables []tableInfo) {
	sort.Slice(tables, func(i, j int) bool { return tables[i].name < tables[j].name })
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"table", "columns", "rows"})
	for _, ti := range tables {
		t.AppendRow(table.Row{ti.name, strings.Join(ti.columns, ", "), ti.rows})
	}
	t.Render()
}

type tableInfo struct {
	name    string
	columns []string
	rows    int
}
