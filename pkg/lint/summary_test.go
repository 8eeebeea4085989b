// SPDX-License-Identifier: Apache-2.0

package lint

import (
	"testing"

	pgq "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summarize(t *testing.T, sql string) StatementSummary {
	t.Helper()
	tree, err := pgq.Parse(sql)
	require.NoError(t, err)
	require.Len(t, tree.GetStmts(), 1)
	summary, err := Summarize(tree.GetStmts()[0].GetStmt())
	require.NoError(t, err)
	return summary
}

func TestSummarizeSetLockTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LockTimeout{}, summarize(t, "SET lock_timeout = 1000"))
	assert.Equal(t, LockTimeout{}, summarize(t, "SET LOCAL lock_timeout = '2s'"))
	assert.Equal(t, Ignored{}, summarize(t, "SET statement_timeout = '2s'"))
}

func TestSummarizeCreateTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sql  string
		want StatementSummary
	}{
		{
			sql: "CREATE TABLE foo (id INT)",
			want: CreateTable{
				Name: "foo",
				Columns: []ColumnSummary{
					{Name: "id", TypeName: "pg_catalog.int4"},
				},
			},
		},
		{
			sql: "CREATE TABLE IF NOT EXISTS public.foo (id INT)",
			want: CreateTable{
				Schema: "public",
				Name:   "foo",
				Columns: []ColumnSummary{
					{Name: "id", TypeName: "pg_catalog.int4"},
				},
			},
		},
		{
			sql: "CREATE TABLE foo.bar (id INT)",
			want: CreateTable{
				Schema: "foo",
				Name:   "bar",
				Columns: []ColumnSummary{
					{Name: "id", TypeName: "pg_catalog.int4"},
				},
			},
		},
		{
			sql: "CREATE TABLE foo (bar json)",
			want: CreateTable{
				Name: "foo",
				Columns: []ColumnSummary{
					{Name: "bar", TypeName: "pg_catalog.json"},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(t, tt.sql))
		})
	}
}

func TestSummarizeCreateTableAs(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		CreateTableAs{Name: "foo"},
		summarize(t, "CREATE TABLE foo AS SELECT * FROM bar"))
	assert.Equal(t,
		CreateTableAs{Schema: "foo", Name: "bar"},
		summarize(t, "CREATE TABLE foo.bar AS SELECT * FROM bar"))
}

func TestSummarizeCreateIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		CreateIndex{IndexName: "idx", Target: "foo"},
		summarize(t, "CREATE INDEX idx ON foo (bar)"))
	assert.Equal(t,
		CreateIndex{IndexName: "idx", Target: "foo", Concurrently: true},
		summarize(t, "CREATE INDEX CONCURRENTLY idx ON foo (bar)"))
	assert.Equal(t,
		CreateIndex{Schema: "foo", IndexName: "idx", Target: "bar"},
		summarize(t, "CREATE INDEX idx ON foo.bar (baz)"))
}

func TestSummarizeAlterTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want StatementSummary
	}{
		{
			name: "set not null",
			sql:  "ALTER TABLE foo ALTER COLUMN bar SET NOT NULL",
			want: AlterTable{Name: "foo", Actions: []Action{SetNotNull{Column: "bar"}}},
		},
		{
			name: "set type to json",
			sql:  "ALTER TABLE foo ALTER COLUMN bar SET DATA TYPE json",
			want: AlterTable{Name: "foo", Actions: []Action{
				SetType{Column: "bar", TypeName: "pg_catalog.json"},
			}},
		},
		{
			name: "add json column",
			sql:  "ALTER TABLE foo ADD COLUMN bar json",
			want: AlterTable{Name: "foo", Actions: []Action{
				AddColumn{Column: "bar", TypeName: "pg_catalog.json"},
			}},
		},
		{
			name: "add not valid foreign key",
			sql:  "ALTER TABLE foo ADD CONSTRAINT fkey FOREIGN KEY (bar) REFERENCES baz (id) NOT VALID",
			want: AlterTable{Name: "foo", Actions: []Action{
				AddConstraint{Name: "fkey", Kind: ConstraintForeign, Valid: false},
			}},
		},
		{
			name: "add unique using index",
			sql:  "ALTER TABLE foo ADD CONSTRAINT unique_fkey UNIQUE USING INDEX idx",
			want: AlterTable{Name: "foo", Actions: []Action{
				AddConstraint{Name: "unique_fkey", Kind: ConstraintUnique, UsesIndex: true, Valid: true},
			}},
		},
		{
			name: "add check not valid",
			sql:  "ALTER TABLE foo ADD CONSTRAINT check_fkey CHECK (bar > 0) NOT VALID",
			want: AlterTable{Name: "foo", Actions: []Action{
				AddConstraint{Name: "check_fkey", Kind: ConstraintCheck, Valid: false},
			}},
		},
		{
			name: "schema qualified",
			sql:  "ALTER TABLE foo.bar ALTER COLUMN baz SET NOT NULL",
			want: AlterTable{Schema: "foo", Name: "bar", Actions: []Action{SetNotNull{Column: "baz"}}},
		},
		{
			name: "unrecognized subcommand",
			sql:  "ALTER TABLE foo DROP COLUMN bar",
			want: AlterTable{Name: "foo", Actions: []Action{Unrecognized{}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(t, tt.sql))
		})
	}
}

func TestSummarizeStoredGeneratedColumn(t *testing.T) {
	t.Parallel()

	summary := summarize(t, "alter table books add column id int generated always as (1 + old_id) stored")
	alter, ok := summary.(AlterTable)
	require.True(t, ok)
	require.Len(t, alter.Actions, 1)
	add, ok := alter.Actions[0].(AddColumn)
	require.True(t, ok)
	assert.True(t, add.StoredGenerated)

	summary = summarize(t, "alter table books add column id int generated always as identity")
	add = summary.(AlterTable).Actions[0].(AddColumn)
	assert.False(t, add.StoredGenerated)
}

func TestSummarizeCreateEnum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CreateEnum{Name: "mood"}, summarize(t, "create type mood as enum ('happy', 'sad')"))
	assert.Equal(t, CreateEnum{Name: "app.mood"}, summarize(t, "create type app.mood as enum ('happy')"))
}

func TestSummarizeIgnoresOtherStatements(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Ignored{}, summarize(t, "SELECT * FROM books"))
	assert.Equal(t, Ignored{}, summarize(t, "DROP TABLE books"))
	assert.Equal(t, Ignored{}, summarize(t, "ALTER INDEX books_pkey RENAME TO books_pk"))
}

func TestCreatedObjectsAndLockTargets(t *testing.T) {
	t.Parallel()

	idx := summarize(t, "CREATE INDEX idx ON foo (bar)")
	assert.Equal(t, []ObjectRef{{Name: "idx"}}, idx.CreatedObjects())
	assert.Equal(t, []ObjectRef{{Name: "foo"}}, idx.LockTargets())

	concurrent := summarize(t, "CREATE INDEX CONCURRENTLY idx ON foo (bar)")
	assert.Empty(t, concurrent.LockTargets())

	table := summarize(t, "CREATE TABLE foo (id int)")
	assert.Equal(t, []ObjectRef{{Name: "foo"}}, table.CreatedObjects())
	assert.Empty(t, table.LockTargets())

	alter := summarize(t, "ALTER TABLE foo ADD COLUMN bar text")
	assert.Empty(t, alter.CreatedObjects())
	assert.Equal(t, []ObjectRef{{Name: "foo"}}, alter.LockTargets())
}
