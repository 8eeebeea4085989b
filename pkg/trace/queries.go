// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/eugene-lint/eugene/pkg/pgtypes"
)

// Queryer is the slice of database/sql that the catalog queries need. Both
// *sql.Tx and *sql.DB satisfy it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ColumnID identifies a column by table OID and attribute number.
type ColumnID struct {
	OID    uint32
	AttNum int
}

// ColumnMetadata is the observed shape of one column. MaxLen is 0 for types
// without a length limit. HasSerialDefault and StoredGenerated capture what
// a SERIAL or GENERATED ... STORED declaration turns into in the catalogs.
type ColumnMetadata struct {
	Schema           string
	Table            string
	Column           string
	Nullable         bool
	TypeName         string
	MaxLen           int
	HasSerialDefault bool
	StoredGenerated  bool
}

// Constraint is one row of pg_constraint, reduced to what the rules need.
type Constraint struct {
	Schema     string
	Table      string
	Kind       pgtypes.ConstraintKind
	Name       string
	Expression string
	Valid      bool
	Target     uint32
	FKTarget   uint32
}

// RelfileID ties a relation to its storage file. A changed relfilenode
// between two observations means the relation was rewritten.
type RelfileID struct {
	Schema      string
	Name        string
	Kind        pgtypes.RelKind
	OID         uint32
	Relfilenode uint32
}

// ForeignKeyReference names a foreign key missing a complete index on its
// referencing side.
type ForeignKeyReference struct {
	ConstraintName string
	Schema         string
	Table          string
	Columns        []string
}

func relkindByte(s string) (byte, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("invalid relation kind: %q", s)
	}
	return s[0], nil
}

// queryLocks enumerates the relation locks held by the current backend.
func queryLocks(ctx context.Context, q Queryer) ([]pgtypes.Lock, error) {
	const query = `SELECT n.nspname::text AS schema_name,
       c.relname::text AS object_name,
       c.relkind::text AS relkind,
       l.mode::text AS mode,
       c.oid::int8 AS oid
  FROM pg_locks l
  JOIN pg_class c ON c.oid = l.relation
  JOIN pg_namespace n ON n.oid = c.relnamespace
 WHERE l.locktype = 'relation' AND l.pid = pg_backend_pid()`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying locks in current transaction: %w", err)
	}
	defer rows.Close()

	var locks []pgtypes.Lock
	for rows.Next() {
		var schema, name, relkind, mode string
		var oid int64
		if err := rows.Scan(&schema, &name, &relkind, &mode, &oid); err != nil {
			return nil, err
		}
		kind, err := relkindByte(relkind)
		if err != nil {
			return nil, err
		}
		lock, err := pgtypes.NewLock(schema, name, mode, kind, uint32(oid))
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

// queryRelevantLocks returns the backend's locks restricted to the given
// object set.
func queryRelevantLocks(ctx context.Context, q Queryer, relevant map[uint32]bool) ([]pgtypes.Lock, error) {
	locks, err := queryLocks(ctx, q)
	if err != nil {
		return nil, err
	}
	filtered := locks[:0]
	for _, lock := range locks {
		if relevant[lock.Target.OID] {
			filtered = append(filtered, lock)
		}
	}
	return filtered, nil
}

func oidArray(oids []uint32) pq.Int64Array {
	arr := make(pq.Int64Array, len(oids))
	for i, oid := range oids {
		arr[i] = int64(oid)
	}
	return arr
}

// queryLockableObjects fetches user-owned lockable objects, skipping the
// system schemas and any OIDs in the skip list.
func queryLockableObjects(ctx context.Context, q Queryer, skip []uint32) ([]pgtypes.LockableTarget, error) {
	const query = `SELECT n.nspname AS schema_name,
       c.relname AS object_name,
       c.relkind::text AS relkind,
       c.oid::int8 AS oid
  FROM pg_catalog.pg_class c
  JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
 WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
   AND NOT c.oid = ANY($1)`
	rows, err := q.QueryContext(ctx, query, oidArray(skip))
	if err != nil {
		return nil, fmt.Errorf("querying lockable objects: %w", err)
	}
	defer rows.Close()

	var targets []pgtypes.LockableTarget
	for rows.Next() {
		var schema, name, relkind string
		var oid int64
		if err := rows.Scan(&schema, &name, &relkind, &oid); err != nil {
			return nil, err
		}
		code, err := relkindByte(relkind)
		if err != nil {
			return nil, err
		}
		kind, err := pgtypes.ParseRelKind(code)
		if err != nil {
			return nil, err
		}
		targets = append(targets, pgtypes.LockableTarget{
			Schema: schema, Name: name, Kind: kind, OID: uint32(oid),
		})
	}
	return targets, rows.Err()
}

// queryColumns fetches every non-system attribute of the given relations.
func queryColumns(ctx context.Context, q Queryer, oids []uint32) (map[ColumnID]ColumnMetadata, error) {
	const query = `SELECT a.attrelid::int8 AS table_oid,
       a.attnum::int4 AS attnum,
       a.attname AS column_name,
       a.attnotnull AS not_null,
       t.typname AS type_name,
       a.atttypmod AS typmod,
       a.attgenerated::text AS generated,
       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), '') AS default_expr,
       n.nspname AS schema_name,
       c.relname AS table_name
  FROM pg_catalog.pg_attribute a
  JOIN pg_catalog.pg_type t ON a.atttypid = t.oid
  JOIN pg_catalog.pg_class c ON a.attrelid = c.oid
  JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
  LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
 WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
   AND a.attnum > 0 AND NOT a.attisdropped
   AND c.oid = ANY($1)`
	rows, err := q.QueryContext(ctx, query, oidArray(oids))
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	columns := map[ColumnID]ColumnMetadata{}
	for rows.Next() {
		var tableOID int64
		var attnum, typmod int
		var name, typeName, generated, defaultExpr, schema, table string
		var notNull bool
		if err := rows.Scan(&tableOID, &attnum, &name, &notNull, &typeName, &typmod, &generated, &defaultExpr, &schema, &table); err != nil {
			return nil, err
		}
		maxLen := 0
		if typmod > 0 {
			maxLen = typmod - 4
		}
		columns[ColumnID{OID: uint32(tableOID), AttNum: attnum}] = ColumnMetadata{
			Schema:           schema,
			Table:            table,
			Column:           name,
			Nullable:         !notNull,
			TypeName:         typeName,
			MaxLen:           maxLen,
			HasSerialDefault: strings.HasPrefix(defaultExpr, "nextval("),
			StoredGenerated:  generated == "s",
		}
	}
	return columns, rows.Err()
}

// queryConstraints fetches all constraints targeting or referencing the
// given relations, keyed by constraint OID.
func queryConstraints(ctx context.Context, q Queryer, oids []uint32) (map[uint32]Constraint, error) {
	const query = `SELECT n.nspname AS schema_name,
       c.relname AS table_name,
       con.oid::int8 AS con_oid,
       con.conname AS constraint_name,
       con.contype::text AS constraint_type,
       con.convalidated AS valid,
       COALESCE(pg_get_constraintdef(con.oid), '') AS expression,
       con.conrelid::int8 AS target,
       con.confrelid::int8 AS fk_target
  FROM pg_catalog.pg_constraint con
  JOIN pg_catalog.pg_class c ON con.conrelid = c.oid
  JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
 WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
   AND (con.conrelid = ANY($1) OR con.confrelid = ANY($1))`
	rows, err := q.QueryContext(ctx, query, oidArray(oids))
	if err != nil {
		return nil, fmt.Errorf("querying constraints: %w", err)
	}
	defer rows.Close()

	constraints := map[uint32]Constraint{}
	for rows.Next() {
		var schema, table, name, contype, expression string
		var conOID, target, fkTarget int64
		var valid bool
		if err := rows.Scan(&schema, &table, &conOID, &name, &contype, &valid, &expression, &target, &fkTarget); err != nil {
			return nil, err
		}
		if len(contype) != 1 {
			return nil, fmt.Errorf("invalid constraint type: %q", contype)
		}
		kind, err := pgtypes.ParseConstraintKind(contype[0])
		if err != nil {
			return nil, err
		}
		constraints[uint32(conOID)] = Constraint{
			Schema:     schema,
			Table:      table,
			Kind:       kind,
			Name:       name,
			Expression: expression,
			Valid:      valid,
			Target:     uint32(target),
			FKTarget:   uint32(fkTarget),
		}
	}
	return constraints, rows.Err()
}

// queryRelfileIDs fetches the current storage file of every tracked
// relation.
func queryRelfileIDs(ctx context.Context, q Queryer, oids []uint32) (map[uint32]RelfileID, error) {
	const query = `SELECT c.oid::int8, c.relfilenode::int8, n.nspname, c.relname, c.relkind::text
  FROM pg_catalog.pg_class c
  JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
 WHERE c.oid = ANY($1)`
	rows, err := q.QueryContext(ctx, query, oidArray(oids))
	if err != nil {
		return nil, fmt.Errorf("querying relation file ids: %w", err)
	}
	defer rows.Close()

	ids := map[uint32]RelfileID{}
	for rows.Next() {
		var oid, relfilenode int64
		var schema, name, relkind string
		if err := rows.Scan(&oid, &relfilenode, &schema, &name, &relkind); err != nil {
			return nil, err
		}
		code, err := relkindByte(relkind)
		if err != nil {
			return nil, err
		}
		kind, err := pgtypes.ParseRelKind(code)
		if err != nil {
			return nil, err
		}
		ids[uint32(oid)] = RelfileID{
			Schema:      schema,
			Name:        name,
			Kind:        kind,
			OID:         uint32(oid),
			Relfilenode: uint32(relfilenode),
		}
	}
	return ids, rows.Err()
}

// queryLockTimeout reads the session's lock_timeout in milliseconds.
func queryLockTimeout(ctx context.Context, q Queryer) (int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT current_setting('lock_timeout')")
	if err != nil {
		return 0, fmt.Errorf("reading lock_timeout: %w", err)
	}
	defer rows.Close()

	var setting string
	if rows.Next() {
		if err := rows.Scan(&setting); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return parseLockTimeout(setting)
}

func parseLockTimeout(setting string) (int64, error) {
	digits := setting
	unit := ""
	for i, r := range setting {
		if r < '0' || r > '9' {
			digits, unit = setting[:i], setting[i:]
			break
		}
	}
	if digits == "" {
		return 0, fmt.Errorf("invalid lock_timeout setting: %q", setting)
	}
	var n int64
	if _, err := fmt.Sscanf(digits, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid lock_timeout setting: %q", setting)
	}
	switch unit {
	case "", "ms":
		return n, nil
	case "s":
		return n * 1000, nil
	case "min":
		return n * 60 * 1000, nil
	case "h":
		return n * 60 * 60 * 1000, nil
	case "d":
		return n * 24 * 60 * 60 * 1000, nil
	default:
		return 0, fmt.Errorf("invalid lock_timeout unit: %q", unit)
	}
}

// queryForeignKeysMissingIndex finds foreign keys whose referencing side
// has no complete backing index. An index is complete when its leading
// columns are exactly the foreign key columns; partial indexes do not
// count.
func queryForeignKeysMissingIndex(ctx context.Context, q Queryer) ([]ForeignKeyReference, error) {
	const fkQuery = `SELECT con.conname,
       n.nspname,
       c.relname,
       con.conrelid::int8,
       con.conkey::int8[],
       (SELECT array_agg(a.attname ORDER BY k.ord)
          FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
          JOIN pg_catalog.pg_attribute a
            ON a.attrelid = con.conrelid AND a.attnum = k.attnum) AS columns
  FROM pg_catalog.pg_constraint con
  JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
  JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
 WHERE con.contype = 'f'
   AND n.nspname NOT IN ('pg_catalog', 'information_schema')`
	rows, err := q.QueryContext(ctx, fkQuery)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	type foreignKey struct {
		ref     ForeignKeyReference
		relid   uint32
		attnums []int64
	}
	var fks []foreignKey
	for rows.Next() {
		var name, schema, table string
		var relid int64
		var attnums pq.Int64Array
		var columns pq.StringArray
		if err := rows.Scan(&name, &schema, &table, &relid, &attnums, &columns); err != nil {
			return nil, err
		}
		fks = append(fks, foreignKey{
			ref: ForeignKeyReference{
				ConstraintName: name,
				Schema:         schema,
				Table:          table,
				Columns:        columns,
			},
			relid:   uint32(relid),
			attnums: attnums,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fks) == 0 {
		return nil, nil
	}

	const indexQuery = `SELECT i.indrelid::int8,
       string_to_array(i.indkey::text, ' ')::int8[] AS attnums
  FROM pg_catalog.pg_index i
 WHERE i.indpred IS NULL`
	idxRows, err := q.QueryContext(ctx, indexQuery)
	if err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}
	defer idxRows.Close()

	indexes := map[uint32][][]int64{}
	for idxRows.Next() {
		var relid int64
		var attnums pq.Int64Array
		if err := idxRows.Scan(&relid, &attnums); err != nil {
			return nil, err
		}
		indexes[uint32(relid)] = append(indexes[uint32(relid)], attnums)
	}
	if err := idxRows.Err(); err != nil {
		return nil, err
	}

	var missing []ForeignKeyReference
	for _, fk := range fks {
		if !hasCompleteIndex(indexes[fk.relid], fk.attnums) {
			missing = append(missing, fk.ref)
		}
	}
	return missing, nil
}

// hasCompleteIndex reports whether any index has the foreign key columns as
// its exact leading prefix.
func hasCompleteIndex(indexes [][]int64, fkColumns []int64) bool {
	for _, index := range indexes {
		if len(index) < len(fkColumns) {
			continue
		}
		match := true
		for i, attnum := range fkColumns {
			if index[i] != attnum {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
