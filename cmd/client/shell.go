package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tuannm99/sqlmission/sqlclient"
)

const helpText = `meta commands:
  \q | quit | exit       quit
  \help                  show help
  \history               print history
  \tables                list tables and their columns
  \reset                 restore the tables to the seed
  \expect <query>        grade every statement against <query>
  \expect                stop grading

sql:
  end a statement with ';'
  multiline is supported (the client waits for ';')`

// shell runs statements and meta commands against one connection.
type shell struct {
	cli  *sqlclient.Client
	out  io.Writer
	st   styles
	hist *History

	// expected is the query statements are graded against; empty disables it.
	expected string
	buf      strings.Builder
}

func newShell(cli *sqlclient.Client, out io.Writer, hist *History) *shell {
	return &shell{cli: cli, out: out, st: newStyles(out), hist: hist}
}

// pending reports whether a statement is being continued.
func (s *shell) pending() bool { return s.buf.Len() > 0 }

func (s *shell) clear() { s.buf.Reset() }

// feed consumes one input line. It returns done=true when the user asked
// to quit and stmt when a complete statement was run.
func (s *shell) feed(ctx context.Context, line string) (stmt string, done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if !s.pending() && isMetaCommand(line) {
		return "", s.meta(ctx, line)
	}

	if s.pending() {
		s.buf.WriteByte(' ')
	}
	s.buf.WriteString(line)
	if !statementComplete(s.buf.String()) {
		return "", false
	}

	stmt = strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if s.hist != nil {
		_ = s.hist.Append(stmt)
	}
	s.run(ctx, stmt)
	return stmt, false
}

func (s *shell) run(ctx context.Context, stmt string) {
	res, err := s.cli.ExecContext(ctx, stmt)
	if err != nil {
		_, _ = fmt.Fprintln(s.out, s.st.bad.Render("error:")+" "+err.Error())
	} else {
		renderResult(s.out, s.st, res)
	}
	s.grade(ctx, stmt)
}

// grade compares stmt to the expected query, if one is set.
func (s *shell) grade(ctx context.Context, stmt string) {
	if s.expected == "" {
		return
	}
	if sqlclient.SameQuery(stmt, s.expected) {
		_, _ = fmt.Fprintln(s.out, s.st.ok.Render("Mission complete!"))
		return
	}
	rep, err := s.cli.Diff(ctx, stmt, s.expected)
	if err != nil {
		_, _ = fmt.Fprintln(s.out, s.st.bad.Render("error:")+" "+err.Error())
		return
	}
	renderReport(s.out, s.st, rep)
}

func (s *shell) meta(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case `\q`, "quit", "exit":
		return true
	case `\help`:
		_, _ = fmt.Fprintln(s.out, helpText)
	case `\history`:
		if s.hist != nil {
			s.hist.Print(s.out, 50)
		}
	case `\reset`:
		if err := s.cli.Reset(ctx); err != nil {
			_, _ = fmt.Fprintln(s.out, s.st.bad.Render("error:")+" "+err.Error())
			return false
		}
		_, _ = fmt.Fprintln(s.out, "tables reset")
	case `\tables`:
		tables, err := s.cli.Tables(ctx)
		if err != nil {
			_, _ = fmt.Fprintln(s.out, s.st.bad.Render("error:")+" "+err.Error())
			return false
		}
		infos := make([]tableInfo, 0, len(tables))
		for _, t := range tables {
			infos = append(infos, tableInfo{name: t.Name, columns: t.Columns, rows: len(t.Rows)})
		}
		renderTables(s.out, infos)
	case `\expect`:
		s.expected = strings.TrimSuffix(arg, ";")
		if s.expected == "" {
			_, _ = fmt.Fprintln(s.out, "grading off")
		} else {
			_, _ = fmt.Fprintln(s.out, "grading against: "+s.expected)
		}
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command: %s\n", line)
	}
	return false
}

func isMetaCommand(line string) bool {
	return strings.HasPrefix(line, `\`) || line == "quit" || line == "exit"
}

// statementComplete checks if we have a terminating ';' outside single quotes.
func statementComplete(buf string) bool {
	inQuote := false
	escaped := false

	for _, r := range buf {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '\'' {
			inQuote = !inQuote
			continue
		}
		if r == ';' && !inQuote {
			return true
		}
	}
	return false
}
