// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"fmt"
	"strings"

	"github.com/eugene-lint/eugene/pkg/hints"
	"github.com/eugene-lint/eugene/pkg/pgtypes"
)

// StatementCtx is what a trace rule sees: the statement's own observations
// plus the accumulated transaction context.
type StatementCtx struct {
	Statement   *StatementTrace
	Transaction *TxTrace
}

// LocksAtStart lists the locks the transaction held before this statement.
func (c *StatementCtx) LocksAtStart() []pgtypes.Lock {
	return c.Transaction.AllLocks()
}

// NewIndexes lists the indexes this statement created.
func (c *StatementCtx) NewIndexes() []pgtypes.LockableTarget {
	var out []pgtypes.LockableTarget
	for _, obj := range c.Statement.CreatedObjects {
		if obj.Kind.IsIndex() {
			out = append(out, obj)
		}
	}
	return out
}

// Rule pairs a catalog hint with a matcher over statement traces.
type Rule struct {
	Hint  hints.Hint
	check func(*StatementCtx) string
}

// ID returns the id of the hint this rule reports.
func (r Rule) ID() string { return r.Hint.ID }

// Check runs the rule and renders its help message.
func (r Rule) Check(c *StatementCtx) (string, bool) {
	help := r.check(c)
	return help, help != ""
}

func addedValidConstraint(c *StatementCtx) string {
	for _, con := range c.Statement.AddedConstraints {
		if !con.Valid {
			continue
		}
		switch con.Kind {
		case pgtypes.Unique, pgtypes.Exclusion, pgtypes.PrimaryKey:
			continue
		}
		return fmt.Sprintf(
			"A new constraint `%s` of type `%s` was added to the table `%s.%s` as `VALID`. "+
				"Constraints that are `NOT VALID` can be made `VALID` by "+
				"`ALTER TABLE %s.%s VALIDATE CONSTRAINT %s` which takes a lesser lock.",
			con.Name, con.Kind, con.Schema, con.Table, con.Schema, con.Table, con.Name)
	}
	return ""
}

// hasValidNotNullCheck reports whether the table already carries a valid
// CHECK constraint asserting the column is not null. The contract is token
// containment: the deparsed expression must mention `<column> IS NOT NULL`.
func hasValidNotNullCheck(c *StatementCtx, col ColumnMetadata) bool {
	for _, con := range c.Transaction.constraints {
		if con.Kind != pgtypes.Check || !con.Valid {
			continue
		}
		if con.Schema != col.Schema || con.Table != col.Table {
			continue
		}
		expr := strings.ToLower(con.Expression)
		want := strings.ToLower(col.Column) + " is not null"
		if strings.Contains(expr, want) {
			return true
		}
	}
	return false
}

func madeColumnNotNullable(c *StatementCtx) string {
	for _, mod := range c.Statement.ModifiedColumns {
		if !mod.Old.Nullable || mod.New.Nullable {
			continue
		}
		if hasValidNotNullCheck(c, mod.New) {
			continue
		}
		table := fmt.Sprintf("%s.%s", mod.New.Schema, mod.New.Table)
		col := mod.New.Column
		return fmt.Sprintf(
			"The column `%s` in the table `%s` was changed to `NOT NULL`. "+
				"If there is a `CHECK (%s IS NOT NULL)` constraint on `%s`, this is safe. "+
				"Splitting this kind of change into 3 steps can make it safe:\n\n"+
				"1. Add a `CHECK (%s IS NOT NULL) NOT VALID;` constraint on `%s`.\n"+
				"2. Validate the constraint in a later transaction, with `ALTER TABLE %s VALIDATE CONSTRAINT ...`.\n"+
				"3. Make the column `NOT NULL`\n",
			col, table, col, table, col, table, table)
	}
	return ""
}

func addedJSONColumn(c *StatementCtx) string {
	for _, col := range c.Statement.AddedColumns {
		if col.TypeName != "json" {
			continue
		}
		return fmt.Sprintf(
			"A new column `%s` of type `json` was added to the table `%s.%s`. The `json` type does not "+
				"support the equality operator, so this can break `SELECT DISTINCT` queries on the table. "+
				"Use the `jsonb` type instead.",
			col.Column, col.Schema, col.Table)
	}
	return ""
}

func holdingAccessExclusive(c *StatementCtx) string {
	for _, lock := range c.LocksAtStart() {
		if lock.Mode != pgtypes.AccessExclusive {
			continue
		}
		return fmt.Sprintf(
			"The statement is running while holding an `AccessExclusiveLock` on the %s `%s.%s`, "+
				"blocking all other transactions from accessing it.",
			lock.Target.Kind, lock.Target.Schema, lock.Target.Name)
	}
	return ""
}

func changedColumnType(c *StatementCtx) string {
	for _, mod := range c.Statement.ModifiedColumns {
		if mod.Old.TypeName == mod.New.TypeName {
			continue
		}
		return fmt.Sprintf(
			"The column `%s` in the table `%s.%s` was changed from type `%s` to `%s`. This always requires "+
				"an `AccessExclusiveLock` that will block all other transactions from using the table, and for some "+
				"type changes, it causes a time-consuming table rewrite.",
			mod.New.Column, mod.New.Schema, mod.New.Table, mod.Old.TypeName, mod.New.TypeName)
	}
	return ""
}

func createdNonconcurrentIndex(c *StatementCtx) string {
	for _, lock := range c.Statement.NewLocks {
		if lock.Mode != pgtypes.Share {
			continue
		}
		index := ""
		for _, idx := range c.NewIndexes() {
			index = fmt.Sprintf("`%s.%s` ", idx.Schema, idx.Name)
			break
		}
		return fmt.Sprintf(
			"A new index was created on the table `%s.%s`. "+
				"The index %swas created non-concurrently, which blocks all writes to the table. "+
				"Use `CREATE INDEX CONCURRENTLY` to avoid blocking writes.",
			lock.Target.Schema, lock.Target.Name, index)
	}
	return ""
}

func addedUniqueConstraintWithIndex(c *StatementCtx) string {
	for _, con := range c.Statement.AddedConstraints {
		if con.Kind != pgtypes.Unique {
			continue
		}
		for _, idx := range c.NewIndexes() {
			return fmt.Sprintf(
				"A new unique constraint `%s` was added to the table `%s.%s`. "+
					"This constraint creates a unique index on the table, and blocks all writes. "+
					"Consider creating the index concurrently in a separate transaction, then adding "+
					"the unique constraint by using the index: "+
					"`ALTER TABLE %s.%s ADD CONSTRAINT %s UNIQUE USING INDEX %s.%s;`",
				con.Name, con.Schema, con.Table, con.Schema, con.Table, con.Name, idx.Schema, idx.Name)
		}
	}
	return ""
}

func addedExclusionConstraint(c *StatementCtx) string {
	for _, con := range c.Statement.AddedConstraints {
		if con.Kind != pgtypes.Exclusion {
			continue
		}
		return fmt.Sprintf(
			"A new exclusion constraint `%s` was added to the table `%s.%s`. "+
				"There is no safe way to add an exclusion constraint to an existing table. "+
				"This constraint creates an index on the table, and blocks all reads and writes.",
			con.Name, con.Schema, con.Table)
	}
	return ""
}

func tookDangerousLockWithoutTimeout(c *StatementCtx) string {
	if c.Statement.LockTimeoutMillis > 0 {
		return ""
	}
	for _, lock := range c.Statement.NewLocks {
		if !lock.Dangerous() {
			continue
		}
		blocked := make([]string, 0, len(lock.BlockedQueries()))
		for _, q := range lock.BlockedQueries() {
			blocked = append(blocked, "`"+q+"`")
		}
		return fmt.Sprintf(
			"The statement took `%s` on the %s `%s.%s` without a timeout. It blocks %s while waiting to acquire the lock.",
			lock.Mode, lock.Target.Kind, lock.Target.Schema, lock.Target.Name, strings.Join(blocked, ", "))
	}
	return ""
}

func rewroteObjectWithDangerousLock(c *StatementCtx) string {
	var dangerous *pgtypes.Lock
	for _, lock := range c.Statement.NewLocks {
		if lock.Dangerous() {
			dangerous = &lock
			break
		}
	}
	if dangerous == nil {
		return ""
	}
	for _, obj := range c.Statement.RewrittenObjects {
		return fmt.Sprintf(
			"The %s `%s.%s` was rewritten while holding `%s` on the %s `%s.%s`. "+
				"This blocks many operations while the rewrite is in progress.",
			obj.Kind, obj.Schema, obj.Name,
			dangerous.Mode, dangerous.Target.Kind, dangerous.Target.Schema, dangerous.Target.Name)
	}
	return ""
}

func addedSerialOrStoredColumn(c *StatementCtx) string {
	for _, col := range c.Statement.AddedColumns {
		if !col.HasSerialDefault && !col.StoredGenerated {
			continue
		}
		return fmt.Sprintf(
			"A new column `%s` was added to the table `%s.%s` with a `SERIAL` or `GENERATED ... STORED` "+
				"declaration. This requires a table rewrite that blocks all access to the table.",
			col.Column, col.Schema, col.Table)
	}
	return ""
}

func foreignKeyMissingIndex(c *StatementCtx) string {
	for _, fk := range c.Statement.FKsMissingIndex {
		return fmt.Sprintf(
			"The foreign key `%s` on `%s.%s` has no complete index on its referencing columns (%s). "+
				"Updates and deletes on the referenced table may scan `%s.%s`.",
			fk.ConstraintName, fk.Schema, fk.Table, strings.Join(fk.Columns, ", "), fk.Schema, fk.Table)
	}
	return ""
}

// Rules is the trace-rule catalog, evaluated in order.
var Rules = []Rule{
	{Hint: hints.ValidatingNewConstraint, check: addedValidConstraint},
	{Hint: hints.NewNotNullColumn, check: madeColumnNotNullable},
	{Hint: hints.AddedJSONColumn, check: addedJSONColumn},
	{Hint: hints.HoldingAccessExclusive, check: holdingAccessExclusive},
	{Hint: hints.TypeChangeRewrite, check: changedColumnType},
	{Hint: hints.NonconcurrentIndex, check: createdNonconcurrentIndex},
	{Hint: hints.UniqueConstraintIndex, check: addedUniqueConstraintWithIndex},
	{Hint: hints.ExclusionConstraint, check: addedExclusionConstraint},
	{Hint: hints.DangerousLockNoTimeout, check: tookDangerousLockWithoutTimeout},
	{Hint: hints.RewriteWithDangerousLock, check: rewroteObjectWithDangerousLock},
	{Hint: hints.SerialOrStoredColumn, check: addedSerialOrStoredColumn},
	{Hint: hints.ForeignKeyMissingIndex, check: foreignKeyMissingIndex},
}
