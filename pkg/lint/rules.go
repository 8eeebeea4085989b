// SPDX-License-Identifier: Apache-2.0

package lint

import (
	"fmt"
	"strings"

	"github.com/eugene-lint/eugene/pkg/hints"
)

// Context is what a lint rule sees: the statement summary plus the state
// accumulated from earlier statements. Rules never mutate either.
type Context struct {
	State     *TransactionState
	Statement StatementSummary
}

// VisibleLockTargets lists the statement's lock targets that concurrent
// transactions can observe.
func (c Context) VisibleLockTargets() []ObjectRef {
	var visible []ObjectRef
	for _, target := range c.Statement.LockTargets() {
		if c.State.IsVisible(target) {
			visible = append(visible, target)
		}
	}
	return visible
}

func displaySchema(schema string) string {
	if schema == "" {
		return "public"
	}
	return schema
}

// baseTypeName strips the schema qualification from a dotted type name.
func baseTypeName(typeName string) string {
	if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}

var serialTypes = map[string]bool{
	"serial":      true,
	"serial2":     true,
	"serial4":     true,
	"serial8":     true,
	"smallserial": true,
	"bigserial":   true,
}

// Rule pairs a catalog hint with a matcher. The matcher returns a
// statement-specific help message, or "" when the rule does not apply.
type Rule struct {
	Hint  hints.Hint
	check func(Context) string
}

// ID returns the id of the hint this rule reports.
func (r Rule) ID() string { return r.Hint.ID }

// Check runs the rule and renders its help message.
func (r Rule) Check(c Context) (string, bool) {
	help := r.check(c)
	return help, help != ""
}

// visibleAlterTable unpacks the statement as an ALTER TABLE whose target is
// visible outside the transaction.
func visibleAlterTable(c Context) (AlterTable, bool) {
	alter, ok := c.Statement.(AlterTable)
	if !ok {
		return AlterTable{}, false
	}
	if !c.State.IsVisible(ObjectRef{Schema: alter.Schema, Name: alter.Name}) {
		return AlterTable{}, false
	}
	return alter, true
}

func addingValidConstraint(c Context) string {
	alter, ok := visibleAlterTable(c)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		add, ok := action.(AddConstraint)
		if !ok || !add.Valid {
			continue
		}
		switch add.Kind {
		case ConstraintCheck, ConstraintNotNull, ConstraintForeign:
			name := ""
			if add.Name != "" {
				name = fmt.Sprintf("`%s` ", add.Name)
			}
			return fmt.Sprintf(
				"Statement takes `AccessExclusiveLock` on `%s.%s`, blocking reads until constraint %sis validated",
				displaySchema(alter.Schema), alter.Name, name)
		}
	}
	return ""
}

func settingColumnNotNull(c Context) string {
	alter, ok := visibleAlterTable(c)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		if set, ok := action.(SetNotNull); ok {
			return fmt.Sprintf(
				"Statement takes `AccessExclusiveLock` on `%s.%s` by setting `%s` to `NOT NULL` blocking reads until all rows are validated",
				displaySchema(alter.Schema), alter.Name, set.Column)
		}
	}
	return ""
}

func addedJSONColumn(c Context) string {
	jsonHelp := func(schema, table, column string) string {
		return fmt.Sprintf(
			"Set type of column `%s` to `json` in `%s.%s`. The `json` type does not support equality and should not be used, use `jsonb` instead",
			column, displaySchema(schema), table)
	}
	switch stmt := c.Statement.(type) {
	case AlterTable:
		for _, action := range stmt.Actions {
			switch a := action.(type) {
			case SetType:
				if baseTypeName(a.TypeName) == "json" {
					return jsonHelp(stmt.Schema, stmt.Name, a.Column)
				}
			case AddColumn:
				if baseTypeName(a.TypeName) == "json" {
					return jsonHelp(stmt.Schema, stmt.Name, a.Column)
				}
			}
		}
	case CreateTable:
		for _, col := range stmt.Columns {
			if baseTypeName(col.TypeName) == "json" {
				return jsonHelp(stmt.Schema, stmt.Name, col.Name)
			}
		}
	}
	return ""
}

func runningMoreStatementsAfterAccessExclusive(c Context) string {
	if c.State.HoldsAccessExclusive() {
		return "Running more statements after taking `AccessExclusiveLock`"
	}
	return ""
}

func changingColumnType(c Context) string {
	alter, ok := visibleAlterTable(c)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		if set, ok := action.(SetType); ok {
			return fmt.Sprintf(
				"Changed type of column `%s` to `%s` in `%s.%s`. This operation requires a full table rewrite with `AccessExclusiveLock` if `%s` is not binary compatible with the previous type of `%s`. Prefer adding a new column with the new type, then dropping/renaming.",
				set.Column, set.TypeName, displaySchema(alter.Schema), alter.Name, set.TypeName, set.Column)
		}
	}
	return ""
}

func creatingIndexNonconcurrently(c Context) string {
	idx, ok := c.Statement.(CreateIndex)
	if !ok || idx.Concurrently {
		return ""
	}
	if !c.State.IsVisible(ObjectRef{Schema: idx.Schema, Name: idx.Target}) {
		return ""
	}
	schema := displaySchema(idx.Schema)
	return fmt.Sprintf(
		"Statement takes `ShareLock` on `%s.%s`, blocking writes while creating index `%s.%s`",
		schema, idx.Target, schema, idx.IndexName)
}

func addingUniqueConstraintWithoutIndex(c Context) string {
	alter, ok := visibleAlterTable(c)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		add, ok := action.(AddConstraint)
		if !ok || add.UsesIndex {
			continue
		}
		if add.Kind == ConstraintUnique || add.Kind == ConstraintPrimaryKey {
			return fmt.Sprintf(
				"New constraint %s creates implicit index on `%s.%s`, blocking writes until index is created and validated",
				add.Name, displaySchema(alter.Schema), alter.Name)
		}
	}
	return ""
}

func addingExclusionConstraint(c Context) string {
	alter, ok := visibleAlterTable(c)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		add, ok := action.(AddConstraint)
		if !ok || add.Kind != ConstraintExclusion {
			continue
		}
		return fmt.Sprintf(
			"Statement takes `AccessExclusiveLock` on `%s.%s`, blocking reads and writes until constraint `%s` is validated and has created index",
			displaySchema(alter.Schema), alter.Name, add.Name)
	}
	return ""
}

func dangerousLockWithoutTimeout(c Context) string {
	if c.State.HasLockTimeout() {
		return ""
	}
	for _, target := range c.VisibleLockTargets() {
		return fmt.Sprintf(
			"Statement takes lock on `%s.%s`, but does not set a lock timeout",
			displaySchema(target.Schema), target.Name)
	}
	return ""
}

func addingSerialOrStoredColumn(c Context) string {
	alter, ok := c.Statement.(AlterTable)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		add, ok := action.(AddColumn)
		if !ok {
			continue
		}
		if serialTypes[baseTypeName(add.TypeName)] || add.StoredGenerated {
			return fmt.Sprintf(
				"Added column `%s` with a `SERIAL` or `GENERATED ... STORED` type to `%s.%s`, this requires a table rewrite",
				add.Column, displaySchema(alter.Schema), alter.Name)
		}
	}
	return ""
}

func repeatedAlterTable(c Context) string {
	alter, ok := c.Statement.(AlterTable)
	if !ok {
		return ""
	}
	if c.State.HasAlteredTable(ObjectRef{Schema: alter.Schema, Name: alter.Name}) {
		return fmt.Sprintf(
			"Multiple `ALTER TABLE` statements on `%s.%s` where one will do, combine them to avoid unnecessary table scans",
			displaySchema(alter.Schema), alter.Name)
	}
	return ""
}

func creatingEnum(c Context) string {
	enum, ok := c.Statement.(CreateEnum)
	if !ok {
		return ""
	}
	return fmt.Sprintf(
		"Created enum `%s`, consider using a foreign key to a lookup table instead",
		enum.Name)
}

func addingPrimaryKeyUsingIndex(c Context) string {
	alter, ok := c.Statement.(AlterTable)
	if !ok {
		return ""
	}
	for _, action := range alter.Actions {
		add, ok := action.(AddConstraint)
		if !ok {
			continue
		}
		if add.Kind == ConstraintPrimaryKey && add.UsesIndex {
			return fmt.Sprintf(
				"Added primary key to `%s.%s` using an index, this can set columns of the index to `NOT NULL`",
				displaySchema(alter.Schema), alter.Name)
		}
	}
	return ""
}

// Rules is the lint-rule catalog, evaluated in order. Rules that subsume
// each other, such as E7 and W14, are both emitted when both match.
var Rules = []Rule{
	{Hint: hints.ValidatingNewConstraint, check: addingValidConstraint},
	{Hint: hints.NewNotNullColumn, check: settingColumnNotNull},
	{Hint: hints.AddedJSONColumn, check: addedJSONColumn},
	{Hint: hints.HoldingAccessExclusive, check: runningMoreStatementsAfterAccessExclusive},
	{Hint: hints.TypeChangeRewrite, check: changingColumnType},
	{Hint: hints.NonconcurrentIndex, check: creatingIndexNonconcurrently},
	{Hint: hints.UniqueConstraintIndex, check: addingUniqueConstraintWithoutIndex},
	{Hint: hints.ExclusionConstraint, check: addingExclusionConstraint},
	{Hint: hints.DangerousLockNoTimeout, check: dangerousLockWithoutTimeout},
	{Hint: hints.SerialOrStoredColumn, check: addingSerialOrStoredColumn},
	{Hint: hints.RepeatedAlterTable, check: repeatedAlterTable},
	{Hint: hints.CreatingEnum, check: creatingEnum},
	{Hint: hints.PrimaryKeyUsingIndex, check: addingPrimaryKeyUsingIndex},
}
