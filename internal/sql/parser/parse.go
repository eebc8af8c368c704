package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tuannm99/sqlmission/internal/record"
)

var (
	ErrSyntax               = errors.New("syntax error")
	ErrUnsupportedCondition = errors.New("unsupported condition")
	ErrUnsupportedStatement = errors.New("unsupported statement")
)

const (
	insertExample = "INSERT INTO users (name, age) VALUES ('John', 25)"
	updateExample = "UPDATE users SET age = 30 WHERE name = 'Alice'"
	deleteExample = "DELETE FROM users WHERE id = 1"
)

// Classify returns the statement kind from the leading keyword.
func Classify(sql string) StatementKind {
	fields := strings.Fields(Normalize(sql))
	if len(fields) == 0 {
		return KindUnknown
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindUnknown
	}
}

// Parse classifies sql and parses it into a Statement.
func Parse(sql string) (Statement, error) {
	switch Classify(sql) {
	case KindSelect:
		return &SelectStmt{Query: Tokenize(sql)}, nil
	case KindInsert:
		s, err := ParseInsert(sql)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindUpdate:
		s, err := ParseUpdate(sql)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindDelete:
		s, err := ParseDelete(sql)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrUnsupportedStatement)
	}
	return nil, fmt.Errorf("%w: %s (supported: SELECT, INSERT, UPDATE, DELETE)",
		ErrUnsupportedStatement, strings.ToUpper(fields[0]))
}

// parseIdent validates an identifier (table/column name).
// Rules (simple):
//   - must be exactly one token (no spaces)
//   - first char: letter or '_'
//   - rest: letter/digit/'_'/'.'
func parseIdent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing identifier")
	}

	parts := strings.Fields(s)
	if len(parts) != 1 {
		return "", fmt.Errorf("invalid identifier %q", s)
	}
	id := parts[0]

	for i, r := range id {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return "", fmt.Errorf("invalid identifier %q", id)
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return "", fmt.Errorf("invalid identifier %q", id)
		}
	}

	return id, nil
}

// trimPrefixFold strips a case-insensitive multi-word prefix.
func trimPrefixFold(s string, words ...string) (string, bool) {
	end, ok := matchWords(s, 0, words)
	if !ok {
		return s, false
	}
	return strings.TrimSpace(s[end:]), true
}

// ParseInsert parses "INSERT INTO t (c1, c2) VALUES (v1, v2)".
func ParseInsert(sql string) (*InsertStmt, error) {
	s := Normalize(sql)
	rest, ok := trimPrefixFold(s, "insert", "into")
	if !ok {
		return nil, syntaxErr("INSERT", insertExample, "missing INSERT INTO")
	}

	tablePart, valPart := splitKeyword(rest, kwValues)
	if strings.TrimSpace(valPart) == "" {
		return nil, syntaxErr("INSERT", insertExample, "missing VALUES list")
	}

	open := strings.IndexByte(tablePart, '(')
	if open < 0 || !strings.HasSuffix(tablePart, ")") {
		return nil, syntaxErr("INSERT", insertExample, "missing column list")
	}

	tableName, err := parseIdent(tablePart[:open])
	if err != nil {
		return nil, syntaxErr("INSERT", insertExample, err.Error())
	}

	var cols []string
	for _, c := range splitComma(tablePart[open+1 : len(tablePart)-1]) {
		col, err := parseIdent(c)
		if err != nil {
			return nil, syntaxErr("INSERT", insertExample, "invalid column: "+err.Error())
		}
		cols = append(cols, col)
	}

	inner, ok := unwrapParens(valPart)
	if !ok {
		return nil, syntaxErr("INSERT", insertExample, "VALUES must be wrapped in parentheses")
	}
	var vals []record.Value
	for _, rv := range splitComma(inner) {
		lit, err := record.ParseLiteral(rv)
		if err != nil {
			return nil, syntaxErr("INSERT", insertExample, err.Error())
		}
		vals = append(vals, lit)
	}

	if len(cols) == 0 {
		return nil, syntaxErr("INSERT", insertExample, "empty column list")
	}
	if len(cols) != len(vals) {
		return nil, syntaxErr("INSERT", insertExample,
			fmt.Sprintf("%d columns but %d values", len(cols), len(vals)))
	}

	return &InsertStmt{TableName: tableName, Columns: cols, Values: vals}, nil
}

// ParseUpdate parses "UPDATE t SET a=1, b='x' WHERE col=v".
// A WHERE clause is mandatory.
func ParseUpdate(sql string) (*UpdateStmt, error) {
	s := Normalize(sql)
	rest, ok := trimPrefixFold(s, "update")
	if !ok {
		return nil, syntaxErr("UPDATE", updateExample, "missing UPDATE")
	}

	tablePart, afterTable := splitKeyword(rest, kwSet)
	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, syntaxErr("UPDATE", updateExample, err.Error())
	}

	setPart, wherePart := splitKeyword(afterTable, kwWhere)
	if strings.TrimSpace(setPart) == "" {
		return nil, syntaxErr("UPDATE", updateExample, "missing SET")
	}
	if strings.TrimSpace(wherePart) == "" {
		return nil, syntaxErr("UPDATE", updateExample, "a WHERE clause is required")
	}

	var assigns []Assignment
	for _, a := range splitComma(setPart) {
		eq := indexOutsideQuotes(a, "=")
		if eq < 0 {
			return nil, syntaxErr("UPDATE", updateExample, fmt.Sprintf("invalid assignment %q", strings.TrimSpace(a)))
		}

		col, err := parseIdent(a[:eq])
		if err != nil {
			return nil, syntaxErr("UPDATE", updateExample, "invalid assignment column: "+err.Error())
		}

		lit, err := record.ParseLiteral(a[eq+1:])
		if err != nil {
			return nil, syntaxErr("UPDATE", updateExample, err.Error())
		}

		assigns = append(assigns, Assignment{Column: col, Value: lit})
	}

	where, err := parseEquality(wherePart)
	if err != nil {
		return nil, syntaxErr("UPDATE", updateExample, err.Error())
	}

	return &UpdateStmt{TableName: tableName, Assignments: assigns, Where: where}, nil
}

// ParseDelete parses "DELETE FROM t WHERE col=v". A WHERE clause is mandatory.
func ParseDelete(sql string) (*DeleteStmt, error) {
	s := Normalize(sql)
	rest, ok := trimPrefixFold(s, "delete", "from")
	if !ok {
		return nil, syntaxErr("DELETE", deleteExample, "missing DELETE FROM")
	}

	tablePart, wherePart := splitKeyword(rest, kwWhere)
	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, syntaxErr("DELETE", deleteExample, err.Error())
	}
	if strings.TrimSpace(wherePart) == "" {
		return nil, syntaxErr("DELETE", deleteExample, "a WHERE clause is required")
	}

	where, err := parseEquality(wherePart)
	if err != nil {
		return nil, syntaxErr("DELETE", deleteExample, err.Error())
	}

	return &DeleteStmt{TableName: tableName, Where: where}, nil
}

func parseEquality(s string) (*Comparison, error) {
	cond, err := ParseCondition(s)
	if err != nil {
		return nil, err
	}
	cmp, ok := cond.(*Comparison)
	if !ok || cmp.Op != OpEq {
		return nil, fmt.Errorf("only WHERE <col> = <literal> is supported here")
	}
	return cmp, nil
}

// operators in match order: two-character operators first
var ops = []Op{OpGte, OpLte, OpGt, OpLt, OpEq}

// ParseCondition parses a single predicate:
//
//	<col> {>=|<=|>|<|=} <literal>
//	<col> IN (SELECT ...)
//
// <col> may be an aggregate call such as COUNT(*).
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty condition", ErrUnsupportedCondition)
	}

	if start, end, ok := findKeyword(s, kwIn, 0); ok {
		col, err := parseOperand(s[:start])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCondition, err)
		}
		inner, ok := unwrapParens(s[end:])
		if !ok || Classify(inner) != KindSelect {
			return nil, fmt.Errorf("%w: IN expects a (SELECT ...) subquery", ErrUnsupportedCondition)
		}
		return &InSubquery{Column: col, Query: inner}, nil
	}

	for _, op := range ops {
		idx := indexOutsideQuotes(s, string(op))
		if idx < 0 {
			continue
		}
		col, err := parseOperand(s[:idx])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCondition, err)
		}
		lit, err := record.ParseLiteral(s[idx+len(op):])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCondition, err)
		}
		return &Comparison{Column: col, Op: op, Value: lit}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCondition, s)
}

// parseOperand accepts an identifier or a call such as COUNT(*) / SUM(col).
func parseOperand(s string) (string, error) {
	s = strings.TrimSpace(s)
	if item, ok := parseCall(s); ok {
		return strings.ToUpper(item.Func) + "(" + item.Arg + ")", nil
	}
	return parseIdent(s)
}

// ParseSelectList splits a select list into items.
func ParseSelectList(s string) ([]SelectItem, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty select list", ErrSyntax)
	}

	var items []SelectItem
	for _, raw := range splitComma(s) {
		raw = strings.TrimSpace(raw)
		switch {
		case raw == "*":
			items = append(items, SelectItem{Kind: ItemStar})
		case strings.Contains(raw, "("):
			item, ok := parseCall(raw)
			if !ok {
				return nil, fmt.Errorf("%w: invalid expression %q", ErrSyntax, raw)
			}
			items = append(items, item)
		default:
			col, err := parseIdent(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
			}
			items = append(items, SelectItem{Kind: ItemColumn, Name: col})
		}
	}
	return items, nil
}

// parseCall parses "FUNC(arg)" where arg is an identifier or '*'.
func parseCall(s string) (SelectItem, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return SelectItem{}, false
	}
	fn, err := parseIdent(s[:open])
	if err != nil {
		return SelectItem{}, false
	}
	arg := strings.TrimSpace(s[open+1 : len(s)-1])
	if arg != "*" {
		if arg, err = parseIdent(arg); err != nil {
			return SelectItem{}, false
		}
	}
	return SelectItem{Kind: ItemCall, Func: strings.ToUpper(fn), Arg: arg}, true
}

func syntaxErr(stmt, example, detail string) error {
	return fmt.Errorf("%w: invalid %s (%s). Example: %s", ErrSyntax, stmt, detail, example)
}

// splitKeyword splits "X <keyword> Y" case-insensitively on the first
// top-level occurrence of keyword. If keyword is not present => (s, "").
func splitKeyword(s string, keyword []string) (string, string) {
	start, end, ok := findKeyword(s, keyword, 0)
	if !ok {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:start]), strings.TrimSpace(s[end:])
}

// unwrapParens returns the text inside a "( ... )" wrapper.
func unwrapParens(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	return strings.TrimSpace(s[1 : len(s)-1]), true
}

// indexOutsideQuotes finds sub outside single/double quoted literals.
func indexOutsideQuotes(s, sub string) int {
	var quote byte
	for i := 0; i+len(sub) <= len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// splitComma splits a comma-separated list, ignoring commas inside quotes
// and parentheses.
func splitComma(s string) []string {
	parts := []string{}
	cur := strings.Builder{}
	var quote rune
	depth := 0
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(parts) > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
