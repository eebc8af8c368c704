package parser

import "github.com/tuannm99/sqlmission/internal/record"

// StatementKind classifies a statement by its leading keyword.
type StatementKind uint8

const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Statement is the root interface for mutating statements.
type Statement interface {
	stmtNode()
}

// ----- SELECT -----

// SelectStmt carries the clause breakdown of a SELECT; clause bodies are
// parsed by the planner.
type SelectStmt struct {
	Query *ParsedQuery
}

func (*SelectStmt) stmtNode() {}

// ----- INSERT -----
type InsertStmt struct {
	TableName string
	Columns   []string
	Values    []record.Value
}

func (*InsertStmt) stmtNode() {}

// ----- UPDATE -----
type Assignment struct {
	Column string
	Value  record.Value
}

type UpdateStmt struct {
	TableName   string
	Assignments []Assignment
	Where       *Comparison
}

func (*UpdateStmt) stmtNode() {}

// ----- DELETE -----
type DeleteStmt struct {
	TableName string
	Where     *Comparison
}

func (*DeleteStmt) stmtNode() {}

// ----- Conditions -----

// Condition is a parsed WHERE/HAVING predicate.
type Condition interface {
	condNode()
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Comparison is "<column> <op> <literal>". Column may be an aggregate call
// such as COUNT(*) when parsed from HAVING.
type Comparison struct {
	Column string
	Op     Op
	Value  record.Value
}

func (*Comparison) condNode() {}

// InSubquery is "<column> IN (SELECT ...)".
type InSubquery struct {
	Column string
	Query  string
}

func (*InSubquery) condNode() {}

// ----- Select list -----

type ItemKind uint8

const (
	ItemColumn ItemKind = iota
	ItemStar
	ItemCall
)

// SelectItem is one entry of a select list.
type SelectItem struct {
	Kind ItemKind
	// Name is the column for ItemColumn.
	Name string
	// Func and Arg describe ItemCall, e.g. SUM / salary; Arg is "*" for COUNT(*).
	Func string
	Arg  string
}
