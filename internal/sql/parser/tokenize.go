package parser

import (
	"strconv"
	"strings"
)

// ClauseKind names one clause of a query.
type ClauseKind uint8

const (
	ClauseSelect ClauseKind = iota
	ClauseFrom
	ClauseJoin
	ClauseWhere
	ClauseGroupBy
	ClauseHaving
	ClauseOrderBy
	ClauseLimit
)

func (c ClauseKind) String() string {
	switch c {
	case ClauseSelect:
		return "SELECT"
	case ClauseFrom:
		return "FROM"
	case ClauseJoin:
		return "JOIN"
	case ClauseWhere:
		return "WHERE"
	case ClauseGroupBy:
		return "GROUP BY"
	case ClauseHaving:
		return "HAVING"
	case ClauseOrderBy:
		return "ORDER BY"
	case ClauseLimit:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

type JoinClause struct {
	Table     string
	Condition string
}

type OrderByClause struct {
	Column    string
	Direction Direction
}

// ParsedQuery holds the raw text of every clause found in a query.
// A clause that was not found is reported by Has, so an empty value and an
// absent clause stay distinguishable.
type ParsedQuery struct {
	Original string
	Select   string
	From     string
	Join     JoinClause
	Where    string
	GroupBy  string
	Having   string
	OrderBy  OrderByClause
	Limit    int

	present uint16
}

func (q *ParsedQuery) set(k ClauseKind) { q.present |= 1 << k }

// Has reports whether clause k was present.
func (q *ParsedQuery) Has(k ClauseKind) bool {
	if q == nil {
		return false
	}
	return q.present&(1<<k) != 0
}

// Raw returns the captured text of clause k, or "" when absent.
func (q *ParsedQuery) Raw(k ClauseKind) string {
	if !q.Has(k) {
		return ""
	}
	switch k {
	case ClauseSelect:
		return q.Select
	case ClauseFrom:
		return q.From
	case ClauseJoin:
		if q.Join.Condition == "" {
			return q.Join.Table
		}
		return q.Join.Table + " ON " + q.Join.Condition
	case ClauseWhere:
		return q.Where
	case ClauseGroupBy:
		return q.GroupBy
	case ClauseHaving:
		return q.Having
	case ClauseOrderBy:
		return q.OrderBy.Column + " " + string(q.OrderBy.Direction)
	case ClauseLimit:
		return strconv.Itoa(q.Limit)
	default:
		return ""
	}
}

// clause boundary keywords, in the order they may appear
var (
	kwSelect  = []string{"select"}
	kwFrom    = []string{"from"}
	kwJoin    = []string{"join"}
	kwOn      = []string{"on"}
	kwWhere   = []string{"where"}
	kwGroupBy = []string{"group", "by"}
	kwHaving  = []string{"having"}
	kwOrderBy = []string{"order", "by"}
	kwLimit   = []string{"limit"}
	kwSet     = []string{"set"}
	kwValues  = []string{"values"}
	kwIn      = []string{"in"}
)

// Tokenize splits a query into its clauses. It never fails: clauses that are
// missing or malformed are simply left unset.
func Tokenize(query string) *ParsedQuery {
	s := Normalize(query)
	q := &ParsedQuery{Original: strings.TrimSpace(query)}
	if s == "" {
		return q
	}

	if _, end, ok := findKeyword(s, kwSelect, 0); ok {
		if fs, _, ok := findKeyword(s, kwFrom, end); ok {
			q.Select = strings.TrimSpace(s[end:fs])
			q.set(ClauseSelect)
		}
	}

	if _, end, ok := findKeyword(s, kwFrom, 0); ok {
		if id := leadingIdent(s[end:]); id != "" {
			q.From = id
			q.set(ClauseFrom)
		}
	}

	if _, end, ok := findKeyword(s, kwJoin, 0); ok {
		rest := s[end:]
		if tbl := leadingIdent(rest); tbl != "" {
			q.Join.Table = tbl
			if _, onEnd, ok := findKeyword(rest, kwOn, 0); ok {
				q.Join.Condition = clauseText(rest, onEnd, kwWhere, kwGroupBy, kwHaving, kwOrderBy, kwLimit)
			}
			q.set(ClauseJoin)
		}
	}

	if _, end, ok := findKeyword(s, kwWhere, 0); ok {
		if w := clauseText(s, end, kwGroupBy, kwHaving, kwOrderBy, kwLimit); w != "" {
			q.Where = w
			q.set(ClauseWhere)
		}
	}

	if _, end, ok := findKeyword(s, kwGroupBy, 0); ok {
		if id := leadingIdent(s[end:]); id != "" {
			q.GroupBy = id
			q.set(ClauseGroupBy)
		}
	}

	if _, end, ok := findKeyword(s, kwHaving, 0); ok {
		if h := clauseText(s, end, kwOrderBy, kwLimit); h != "" {
			q.Having = h
			q.set(ClauseHaving)
		}
	}

	if _, end, ok := findKeyword(s, kwOrderBy, 0); ok {
		if col, rest := orderColumn(clauseText(s, end, kwLimit)); col != "" {
			q.OrderBy = OrderByClause{Column: col, Direction: Asc}
			if f := strings.Fields(rest); len(f) > 0 && strings.EqualFold(f[0], "desc") {
				q.OrderBy.Direction = Desc
			}
			q.set(ClauseOrderBy)
		}
	}

	if _, end, ok := findKeyword(s, kwLimit, 0); ok {
		fields := strings.Fields(s[end:])
		if len(fields) > 0 {
			if n, err := strconv.Atoi(fields[0]); err == nil && n >= 0 {
				q.Limit = n
				q.set(ClauseLimit)
			}
		}
	}

	return q
}

// Normalize trims the query, drops a trailing ';' and collapses whitespace
// outside quoted literals.
func Normalize(query string) string {
	s := strings.TrimSpace(query)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))

	var b strings.Builder
	b.Grow(len(s))
	var quote rune
	space := false
	for _, r := range s {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case ' ', '\t', '\n', '\r':
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// clauseText returns the text following a keyword up to the next of the
// given boundary keywords (or the end of s).
func clauseText(s string, from int, boundaries ...[]string) string {
	stop := len(s)
	for _, kw := range boundaries {
		if start, _, ok := findKeyword(s, kw, from); ok && start < stop {
			stop = start
		}
	}
	return strings.TrimSpace(s[from:stop])
}

// findKeyword locates the first occurrence of a (possibly multi-word) keyword
// at or after from, outside quotes and at parenthesis depth 0. It returns the
// byte offsets of the keyword's start and end.
func findKeyword(s string, words []string, from int) (int, int, bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if i < from || depth != 0 || !wordStart(s, i) {
			continue
		}
		if end, ok := matchWords(s, i, words); ok {
			return i, end, true
		}
	}
	return 0, 0, false
}

// matchWords matches words at s[i:], separated by single spaces, ending on a
// word boundary.
func matchWords(s string, i int, words []string) (int, bool) {
	pos := i
	for n, w := range words {
		if n > 0 {
			if pos >= len(s) || s[pos] != ' ' {
				return 0, false
			}
			pos++
		}
		if pos+len(w) > len(s) || !strings.EqualFold(s[pos:pos+len(w)], w) {
			return 0, false
		}
		pos += len(w)
	}
	if pos < len(s) && isIdentByte(s[pos]) {
		return 0, false
	}
	return pos, true
}

func wordStart(s string, i int) bool {
	return i == 0 || !isIdentByte(s[i-1])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// orderColumn splits an ORDER BY body into its column, or an aggregate call
// such as COUNT(*), and the remaining text.
func orderColumn(text string) (string, string) {
	text = strings.TrimLeft(text, " ")
	id := leadingIdent(text)
	if id == "" {
		return "", ""
	}
	rest := text[len(id):]
	if r := strings.TrimLeft(rest, " "); strings.HasPrefix(r, "(") {
		if end := strings.IndexByte(r, ')'); end > 0 {
			return id + "(" + strings.TrimSpace(r[1:end]) + ")", r[end+1:]
		}
	}
	return id, rest
}

// leadingIdent returns the identifier at the start of s (after spaces).
func leadingIdent(s string) string {
	s = strings.TrimLeft(s, " ")
	n := 0
	for n < len(s) && isIdentByte(s[n]) {
		n++
	}
	return s[:n]
}
