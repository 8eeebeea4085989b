// SPDX-License-Identifier: Apache-2.0

// Package lint statically analyzes migration scripts. Each statement is
// reduced to a StatementSummary, a much simpler tree than the full parse
// tree, and a catalog of rules pattern-matches summaries against the
// running transaction state.
package lint

import (
	"fmt"
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrMissingRelation     = fmt.Errorf("statement does not have a relation")
	ErrMissingColumnDef    = fmt.Errorf("expected a column definition")
	ErrMissingConstraint   = fmt.Errorf("expected a constraint definition")
	ErrMissingTypeName     = fmt.Errorf("column definition has no type name")
	ErrMissingCommandNode  = fmt.Errorf("unrecognized ALTER TABLE command node")
	ErrMissingEnumTypeName = fmt.Errorf("expected enum type name")
)

// ObjectRef names a schema object. Schema is empty when the statement did
// not qualify the name.
type ObjectRef struct {
	Schema string
	Name   string
}

// ConstraintKind classifies an ADD CONSTRAINT action without exposing the
// parser's enum to the rules.
type ConstraintKind int

const (
	ConstraintCheck ConstraintKind = iota
	ConstraintNotNull
	ConstraintUnique
	ConstraintPrimaryKey
	ConstraintForeign
	ConstraintExclusion
	ConstraintOther
)

func constraintKind(t pgq.ConstrType) ConstraintKind {
	switch t {
	case pgq.ConstrType_CONSTR_CHECK:
		return ConstraintCheck
	case pgq.ConstrType_CONSTR_NOTNULL:
		return ConstraintNotNull
	case pgq.ConstrType_CONSTR_UNIQUE:
		return ConstraintUnique
	case pgq.ConstrType_CONSTR_PRIMARY:
		return ConstraintPrimaryKey
	case pgq.ConstrType_CONSTR_FOREIGN:
		return ConstraintForeign
	case pgq.ConstrType_CONSTR_EXCLUSION:
		return ConstraintExclusion
	default:
		return ConstraintOther
	}
}

// ColumnSummary is one column definition in a CREATE TABLE or ADD COLUMN.
type ColumnSummary struct {
	Name            string
	TypeName        string
	StoredGenerated bool
}

// StatementSummary is the reduced form of one parsed statement. Exactly one
// of the concrete types below implements it.
type StatementSummary interface {
	// CreatedObjects lists the objects this statement creates.
	CreatedObjects() []ObjectRef
	// LockTargets lists the objects this statement locks. Empty for
	// CREATE INDEX CONCURRENTLY and for CREATE TABLE [AS], which only
	// lock objects invisible to other transactions.
	LockTargets() []ObjectRef
}

type (
	// Ignored is any statement the linter has no rules about.
	Ignored struct{}
	// LockTimeout is a `SET lock_timeout` statement.
	LockTimeout struct{}
	// CreateTable is a plain CREATE TABLE.
	CreateTable struct {
		Schema  string
		Name    string
		Columns []ColumnSummary
	}
	// CreateTableAs is CREATE TABLE ... AS.
	CreateTableAs struct {
		Schema string
		Name   string
	}
	// CreateIndex is CREATE [UNIQUE] INDEX [CONCURRENTLY].
	CreateIndex struct {
		Schema       string
		IndexName    string
		Concurrently bool
		Target       string
	}
	// AlterTable is an ALTER TABLE with its subcommands.
	AlterTable struct {
		Schema  string
		Name    string
		Actions []Action
	}
	// CreateEnum is CREATE TYPE ... AS ENUM.
	CreateEnum struct {
		Name string
	}
)

func (Ignored) CreatedObjects() []ObjectRef     { return nil }
func (Ignored) LockTargets() []ObjectRef        { return nil }
func (LockTimeout) CreatedObjects() []ObjectRef { return nil }
func (LockTimeout) LockTargets() []ObjectRef    { return nil }

func (s CreateTable) CreatedObjects() []ObjectRef {
	return []ObjectRef{{Schema: s.Schema, Name: s.Name}}
}
func (CreateTable) LockTargets() []ObjectRef { return nil }

func (s CreateTableAs) CreatedObjects() []ObjectRef {
	return []ObjectRef{{Schema: s.Schema, Name: s.Name}}
}
func (CreateTableAs) LockTargets() []ObjectRef { return nil }

func (s CreateIndex) CreatedObjects() []ObjectRef {
	return []ObjectRef{{Schema: s.Schema, Name: s.IndexName}}
}

func (s CreateIndex) LockTargets() []ObjectRef {
	if s.Concurrently {
		return nil
	}
	return []ObjectRef{{Schema: s.Schema, Name: s.Target}}
}

func (AlterTable) CreatedObjects() []ObjectRef { return nil }
func (s AlterTable) LockTargets() []ObjectRef {
	return []ObjectRef{{Schema: s.Schema, Name: s.Name}}
}

func (CreateEnum) CreatedObjects() []ObjectRef { return nil }
func (CreateEnum) LockTargets() []ObjectRef    { return nil }

// Action is one subcommand of an ALTER TABLE statement.
type Action interface {
	action()
}

type (
	// SetType is ALTER COLUMN ... TYPE.
	SetType struct {
		Column   string
		TypeName string
	}
	// SetNotNull is ALTER COLUMN ... SET NOT NULL.
	SetNotNull struct {
		Column string
	}
	// AddConstraint is ADD CONSTRAINT. UsesIndex is set when an existing
	// index backs the constraint; Valid is unset when NOT VALID was given.
	AddConstraint struct {
		Name      string
		UsesIndex bool
		Kind      ConstraintKind
		Valid     bool
	}
	// AddColumn is ADD COLUMN.
	AddColumn struct {
		Column          string
		TypeName        string
		StoredGenerated bool
	}
	// Unrecognized is any other subcommand.
	Unrecognized struct{}
)

func (SetType) action()       {}
func (SetNotNull) action()    {}
func (AddConstraint) action() {}
func (AddColumn) action()     {}
func (Unrecognized) action()  {}

// Summarize reduces one parsed statement to its summary. Statements the
// linter has no rules about come back as Ignored.
func Summarize(node *pgq.Node) (StatementSummary, error) {
	switch n := node.GetNode().(type) {
	case *pgq.Node_VariableSetStmt:
		if strings.EqualFold(n.VariableSetStmt.GetName(), "lock_timeout") {
			return LockTimeout{}, nil
		}
		return Ignored{}, nil
	case *pgq.Node_CreateStmt:
		return summarizeCreateTable(n.CreateStmt)
	case *pgq.Node_CreateTableAsStmt:
		return summarizeCreateTableAs(n.CreateTableAsStmt)
	case *pgq.Node_IndexStmt:
		return summarizeCreateIndex(n.IndexStmt)
	case *pgq.Node_AlterTableStmt:
		return summarizeAlterTable(n.AlterTableStmt)
	case *pgq.Node_CreateEnumStmt:
		return summarizeCreateEnum(n.CreateEnumStmt)
	default:
		return Ignored{}, nil
	}
}

func summarizeCreateTable(stmt *pgq.CreateStmt) (StatementSummary, error) {
	rel := stmt.GetRelation()
	if rel == nil {
		return nil, fmt.Errorf("CREATE TABLE: %w", ErrMissingRelation)
	}
	var columns []ColumnSummary
	for _, elt := range stmt.GetTableElts() {
		col := elt.GetColumnDef()
		if col == nil {
			// Table constraints and LIKE clauses carry no column.
			continue
		}
		typeName, err := typeNameString(col)
		if err != nil {
			return nil, err
		}
		columns = append(columns, ColumnSummary{
			Name:            col.GetColname(),
			TypeName:        typeName,
			StoredGenerated: storedGenerated(col),
		})
	}
	return CreateTable{
		Schema:  rel.GetSchemaname(),
		Name:    rel.GetRelname(),
		Columns: columns,
	}, nil
}

func summarizeCreateTableAs(stmt *pgq.CreateTableAsStmt) (StatementSummary, error) {
	rel := stmt.GetInto().GetRel()
	if rel == nil {
		return nil, fmt.Errorf("CREATE TABLE AS: %w", ErrMissingRelation)
	}
	return CreateTableAs{Schema: rel.GetSchemaname(), Name: rel.GetRelname()}, nil
}

func summarizeCreateIndex(stmt *pgq.IndexStmt) (StatementSummary, error) {
	rel := stmt.GetRelation()
	if rel == nil {
		return nil, fmt.Errorf("CREATE INDEX: %w", ErrMissingRelation)
	}
	return CreateIndex{
		Schema:       rel.GetSchemaname(),
		IndexName:    stmt.GetIdxname(),
		Concurrently: stmt.GetConcurrent(),
		Target:       rel.GetRelname(),
	}, nil
}

func summarizeAlterTable(stmt *pgq.AlterTableStmt) (StatementSummary, error) {
	if stmt.GetObjtype() != pgq.ObjectType_OBJECT_TABLE {
		return Ignored{}, nil
	}
	rel := stmt.GetRelation()
	if rel == nil {
		return nil, fmt.Errorf("ALTER TABLE: %w", ErrMissingRelation)
	}
	actions := make([]Action, 0, len(stmt.GetCmds()))
	for _, cmd := range stmt.GetCmds() {
		alterCmd := cmd.GetAlterTableCmd()
		if alterCmd == nil {
			return nil, fmt.Errorf("%w: %T", ErrMissingCommandNode, cmd.GetNode())
		}
		action, err := summarizeAlterTableCmd(alterCmd)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return AlterTable{
		Schema:  rel.GetSchemaname(),
		Name:    rel.GetRelname(),
		Actions: actions,
	}, nil
}

func summarizeAlterTableCmd(cmd *pgq.AlterTableCmd) (Action, error) {
	switch cmd.GetSubtype() {
	case pgq.AlterTableType_AT_AlterColumnType:
		col, err := expectColumnDef(cmd)
		if err != nil {
			return nil, err
		}
		typeName, err := typeNameString(col)
		if err != nil {
			return nil, err
		}
		return SetType{Column: cmd.GetName(), TypeName: typeName}, nil
	case pgq.AlterTableType_AT_AddColumn:
		col, err := expectColumnDef(cmd)
		if err != nil {
			return nil, err
		}
		typeName, err := typeNameString(col)
		if err != nil {
			return nil, err
		}
		return AddColumn{
			Column:          col.GetColname(),
			TypeName:        typeName,
			StoredGenerated: storedGenerated(col),
		}, nil
	case pgq.AlterTableType_AT_SetNotNull:
		return SetNotNull{Column: cmd.GetName()}, nil
	case pgq.AlterTableType_AT_AddConstraint:
		def := cmd.GetDef().GetConstraint()
		if def == nil {
			return nil, fmt.Errorf("%w, got %T", ErrMissingConstraint, cmd.GetDef().GetNode())
		}
		return AddConstraint{
			Name:      def.GetConname(),
			UsesIndex: def.GetIndexname() != "",
			Kind:      constraintKind(def.GetContype()),
			Valid:     !def.GetSkipValidation(),
		}, nil
	default:
		return Unrecognized{}, nil
	}
}

func summarizeCreateEnum(stmt *pgq.CreateEnumStmt) (StatementSummary, error) {
	parts := make([]string, 0, len(stmt.GetTypeName()))
	for _, n := range stmt.GetTypeName() {
		s := n.GetString_()
		if s == nil {
			return nil, fmt.Errorf("%w, got %T", ErrMissingEnumTypeName, n.GetNode())
		}
		parts = append(parts, s.GetSval())
	}
	return CreateEnum{Name: strings.Join(parts, ".")}, nil
}

func expectColumnDef(cmd *pgq.AlterTableCmd) (*pgq.ColumnDef, error) {
	col := cmd.GetDef().GetColumnDef()
	if col == nil {
		return nil, fmt.Errorf("%w, got %T", ErrMissingColumnDef, cmd.GetDef().GetNode())
	}
	return col, nil
}

// typeNameString joins the qualified name parts of a column's type, so `int`
// becomes `pg_catalog.int4` and `json` becomes `pg_catalog.json`.
func typeNameString(col *pgq.ColumnDef) (string, error) {
	tn := col.GetTypeName()
	if tn == nil {
		return "", ErrMissingTypeName
	}
	parts := make([]string, 0, len(tn.GetNames()))
	for _, n := range tn.GetNames() {
		s := n.GetString_()
		if s == nil {
			return "", fmt.Errorf("%w: %T", ErrMissingTypeName, n.GetNode())
		}
		parts = append(parts, s.GetSval())
	}
	return strings.Join(parts, "."), nil
}

func storedGenerated(col *pgq.ColumnDef) bool {
	for _, c := range col.GetConstraints() {
		cons := c.GetConstraint()
		if cons.GetContype() == pgq.ConstrType_CONSTR_GENERATED && cons.GetGeneratedWhen() == "a" {
			return true
		}
	}
	return false
}
