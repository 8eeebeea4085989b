// SPDX-License-Identifier: Apache-2.0

// Package trace executes migration scripts against a live Postgres and
// observes what each statement actually did: locks taken, columns and
// constraints changed, relations rewritten, and the lock_timeout in effect.
// A second rule catalog evaluates these observations.
package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/eugene-lint/eugene/pkg/comments"
	"github.com/eugene-lint/eugene/pkg/pgtypes"
	"github.com/eugene-lint/eugene/pkg/report"
	"github.com/eugene-lint/eugene/pkg/scripts"
)

// ModifiedColumn is a before/after pair for a column that changed.
type ModifiedColumn struct {
	Old ColumnMetadata
	New ColumnMetadata
}

// ModifiedConstraint is a before/after pair for a constraint that changed.
type ModifiedConstraint struct {
	Old Constraint
	New Constraint
}

// StatementTrace is everything observed while executing one statement.
type StatementTrace struct {
	SQL                 string
	LineNumber          int
	Duration            time.Duration
	NewLocks            []pgtypes.Lock
	AddedColumns        []ColumnMetadata
	ModifiedColumns     []ModifiedColumn
	AddedConstraints    []Constraint
	ModifiedConstraints []ModifiedConstraint
	CreatedObjects      []pgtypes.LockableTarget
	RewrittenObjects    []RelfileID
	LockTimeoutMillis   int64
	FKsMissingIndex     []ForeignKeyReference
	Hints               []report.TriggeredHint
}

// TxTrace is the accumulated observation of a whole script.
type TxTrace struct {
	Name       string
	StartedAt  time.Time
	Statements []StatementTrace
	// Concurrent marks a trace of statements that had to run outside a
	// transaction; such traces carry no snapshots.
	Concurrent bool

	initialObjects map[uint32]bool
	allLocks       map[pgtypes.LockKey]pgtypes.Lock
	createdObjects map[uint32]bool
	columns        map[ColumnID]ColumnMetadata
	constraints    map[uint32]Constraint
	relfileIDs     map[uint32]uint32
	ignoredHints   map[string]bool
}

// Success reports whether no statement triggered any hint.
func (t *TxTrace) Success() bool {
	for _, s := range t.Statements {
		if len(s.Hints) > 0 {
			return false
		}
	}
	return true
}

// AllLocks returns every lock accumulated so far.
func (t *TxTrace) AllLocks() []pgtypes.Lock {
	locks := make([]pgtypes.Lock, 0, len(t.allLocks))
	for _, l := range t.allLocks {
		locks = append(locks, l)
	}
	return locks
}

// ConstraintsOn returns the known constraints targeting the given relation.
func (t *TxTrace) ConstraintsOn(oid uint32) []Constraint {
	var out []Constraint
	for _, con := range t.constraints {
		if con.Target == oid {
			out = append(out, con)
		}
	}
	return out
}

func ignoredSet(ids []string) map[string]bool {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Transaction traces a script inside the given transaction. Statements run
// strictly in order on the one connection; an execution error aborts the
// trace with the offending SQL attached.
func Transaction(ctx context.Context, tx Queryer, name string, statements []scripts.Statement, ignoredHints []string) (*TxTrace, error) {
	objects, err := queryLockableObjects(ctx, tx, nil)
	if err != nil {
		return nil, err
	}
	initial := map[uint32]bool{}
	oids := make([]uint32, 0, len(objects))
	for _, obj := range objects {
		initial[obj.OID] = true
		oids = append(oids, obj.OID)
	}
	columns, err := queryColumns(ctx, tx, oids)
	if err != nil {
		return nil, err
	}
	constraints, err := queryConstraints(ctx, tx, oids)
	if err != nil {
		return nil, err
	}
	relfiles, err := queryRelfileIDs(ctx, tx, oids)
	if err != nil {
		return nil, err
	}
	relfileIDs := make(map[uint32]uint32, len(relfiles))
	for oid, id := range relfiles {
		relfileIDs[oid] = id.Relfilenode
	}

	trace := &TxTrace{
		Name:           name,
		StartedAt:      time.Now(),
		initialObjects: initial,
		allLocks:       map[pgtypes.LockKey]pgtypes.Lock{},
		createdObjects: map[uint32]bool{},
		columns:        columns,
		constraints:    constraints,
		relfileIDs:     relfileIDs,
		ignoredHints:   ignoredSet(ignoredHints),
	}
	for i, stmt := range statements {
		finalChecks := i == len(statements)-1
		if err := trace.traceStatement(ctx, tx, stmt, finalChecks); err != nil {
			return nil, err
		}
	}
	return trace, nil
}

// traceStatement executes one statement and diffs the catalog snapshots
// around it.
func (t *TxTrace) traceStatement(ctx context.Context, tx Queryer, stmt scripts.Statement, finalChecks bool) error {
	directive, err := comments.Find(stmt.SQL)
	if err != nil {
		return fmt.Errorf("statement at line %d: %w", stmt.LineNumber, err)
	}

	lockTimeout, err := queryLockTimeout(ctx, tx)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := tx.ExecContext(ctx, stmt.SQL); err != nil {
		return fmt.Errorf("executing statement at line %d (%s): %w", stmt.LineNumber, stmt.SQL, err)
	}
	duration := time.Since(start)

	oids := make([]uint32, 0, len(t.initialObjects))
	for oid := range t.initialObjects {
		oids = append(oids, oid)
	}

	locks, err := queryRelevantLocks(ctx, tx, t.initialObjects)
	if err != nil {
		return err
	}
	var newLocks []pgtypes.Lock
	for _, lock := range locks {
		if _, held := t.allLocks[lock.Key()]; !held {
			newLocks = append(newLocks, lock)
		}
	}

	relfiles, err := queryRelfileIDs(ctx, tx, oids)
	if err != nil {
		return err
	}
	var rewritten []RelfileID
	for oid, id := range relfiles {
		if prev, seen := t.relfileIDs[oid]; seen && prev != id.Relfilenode {
			rewritten = append(rewritten, id)
		}
		t.relfileIDs[oid] = id.Relfilenode
	}

	columns, err := queryColumns(ctx, tx, oids)
	if err != nil {
		return err
	}
	var addedColumns []ColumnMetadata
	var modifiedColumns []ModifiedColumn
	for id, col := range columns {
		previous, existed := t.columns[id]
		switch {
		case !existed:
			addedColumns = append(addedColumns, col)
		case previous != col:
			modifiedColumns = append(modifiedColumns, ModifiedColumn{Old: previous, New: col})
		}
	}
	t.columns = columns

	constraints, err := queryConstraints(ctx, tx, oids)
	if err != nil {
		return err
	}
	var addedConstraints []Constraint
	var modifiedConstraints []ModifiedConstraint
	for id, con := range constraints {
		previous, existed := t.constraints[id]
		switch {
		case !existed:
			addedConstraints = append(addedConstraints, con)
		case previous != con:
			modifiedConstraints = append(modifiedConstraints, ModifiedConstraint{Old: previous, New: con})
		}
	}
	t.constraints = constraints

	objects, err := queryLockableObjects(ctx, tx, oids)
	if err != nil {
		return err
	}
	var created []pgtypes.LockableTarget
	for _, obj := range objects {
		if !t.createdObjects[obj.OID] {
			created = append(created, obj)
			t.createdObjects[obj.OID] = true
		}
	}

	statement := StatementTrace{
		SQL:                 stmt.SQL,
		LineNumber:          stmt.LineNumber,
		Duration:            duration,
		NewLocks:            newLocks,
		AddedColumns:        addedColumns,
		ModifiedColumns:     modifiedColumns,
		AddedConstraints:    addedConstraints,
		ModifiedConstraints: modifiedConstraints,
		CreatedObjects:      created,
		RewrittenObjects:    rewritten,
		LockTimeoutMillis:   lockTimeout,
	}
	if finalChecks {
		statement.FKsMissingIndex, err = queryForeignKeysMissingIndex(ctx, tx)
		if err != nil {
			return err
		}
	}

	if !directive.SkipAll {
		sctx := &StatementCtx{Statement: &statement, Transaction: t}
		for _, rule := range Rules {
			if t.ignoredHints[rule.ID()] || directive.Suppresses(rule.ID()) {
				continue
			}
			if help, ok := rule.Check(sctx); ok {
				statement.Hints = append(statement.Hints, report.NewTriggeredHint(rule.Hint, help))
			}
		}
	}

	t.Statements = append(t.Statements, statement)
	for _, lock := range locks {
		t.allLocks[lock.Key()] = lock
	}
	return nil
}

// Concurrent runs statements that cannot execute inside a transaction, such
// as CREATE INDEX CONCURRENTLY, on a raw connection. No snapshots are taken
// and no rules run; the trace records success or failure only.
func Concurrent(ctx context.Context, db Queryer, name string, statements []scripts.Statement, ignoredHints []string) (*TxTrace, error) {
	trace := &TxTrace{
		Name:         name,
		StartedAt:    time.Now(),
		Concurrent:   true,
		ignoredHints: ignoredSet(ignoredHints),
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.SQL); err != nil {
			return nil, fmt.Errorf("executing statement at line %d (%s): %w", stmt.LineNumber, stmt.SQL, err)
		}
		trace.Statements = append(trace.Statements, StatementTrace{
			SQL:        stmt.SQL,
			LineNumber: stmt.LineNumber,
		})
	}
	return trace, nil
}

// Report flattens the trace into the shared report model.
func (t *TxTrace) Report() report.Report {
	entries := make([]report.Statement, 0, len(t.Statements))
	for i, s := range t.Statements {
		entry := report.Statement{
			Number:         i + 1,
			LineNumber:     s.LineNumber,
			SQL:            s.SQL,
			DurationMillis: s.Duration.Milliseconds(),
			Hints:          s.Hints,
		}
		if !t.Concurrent {
			entry.LockTimeoutMillis.Set(s.LockTimeoutMillis)
		}
		for _, lock := range s.NewLocks {
			entry.NewLocks = append(entry.NewLocks, report.LockTaken{
				Schema:         lock.Target.Schema,
				Object:         lock.Target.Name,
				RelKind:        lock.Target.Kind.String(),
				Mode:           lock.Mode.String(),
				Dangerous:      lock.Dangerous(),
				BlockedQueries: lock.BlockedQueries(),
			})
		}
		entries = append(entries, entry)
	}
	return report.Report{
		Name:            t.Name,
		PassedAllChecks: report.Passed(entries),
		Statements:      entries,
	}
}
