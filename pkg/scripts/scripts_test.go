// SPDX-License-Identifier: Apache-2.0

package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitNumbersLines(t *testing.T) {
	t.Parallel()

	sql := "ALTER TABLE foo ADD a text;\n\n\n-- A comment\nCREATE UNIQUE INDEX my_index ON foo (a);"
	statements, err := Split(sql)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, 1, statements[0].LineNumber)
	assert.Equal(t, 5, statements[1].LineNumber)
}

func TestSplitMultilineStatements(t *testing.T) {
	t.Parallel()

	sql := "ALTER TABLE\n    foo\nADD\n    a text;\n\nCREATE UNIQUE INDEX\n    my_index ON foo (a);"
	statements, err := Split(sql)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, 1, statements[0].LineNumber)
	assert.Equal(t, 6, statements[1].LineNumber)
}

func TestSplitKeepsAttachedComments(t *testing.T) {
	t.Parallel()

	sql := "SELECT * FROM tab; -- eugene: ignore\nSELECT * FROM tab;"
	statements, err := Split(sql)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, "SELECT * FROM tab", statements[0].SQL)
	assert.Contains(t, statements[1].SQL, "-- eugene: ignore")
	assert.Equal(t, 2, statements[1].LineNumber)
}

func TestSplitDollarQuotedBody(t *testing.T) {
	t.Parallel()

	sql := `CREATE OR REPLACE FUNCTION test_fn(rolename NAME) RETURNS TEXT AS
$$
BEGIN
  RETURN 1;
END;
$$
LANGUAGE plpgsql; select * from tab;`
	statements, err := Split(sql)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0].SQL, "LANGUAGE plpgsql")
	assert.Equal(t, "select * from tab", statements[1].SQL)
	assert.Equal(t, 7, statements[1].LineNumber)
}

func TestSplitRejectsBadSQL(t *testing.T) {
	t.Parallel()

	_, err := Split("this is not sql at all;")
	assert.Error(t, err)
}

func TestIsConcurrently(t *testing.T) {
	t.Parallel()

	assert.True(t, IsConcurrently("create index concurrently idx on foo(bar)"))
	assert.True(t, IsConcurrently("CREATE INDEX CONCURRENTLY idx ON foo(bar)"))
	assert.False(t, IsConcurrently("create index idx on foo(bar)"))
}

func TestResolvePlaceholders(t *testing.T) {
	t.Parallel()

	resolved, err := ResolvePlaceholders(
		"alter table ${schema}.books add column ${col} text;",
		map[string]string{"schema": "public", "col": "subtitle"},
	)
	require.NoError(t, err)
	assert.Equal(t, "alter table public.books add column subtitle text;", resolved)
}

func TestResolvePlaceholdersIsIdempotent(t *testing.T) {
	t.Parallel()

	mapping := map[string]string{"schema": "public"}
	once, err := ResolvePlaceholders("select * from ${schema}.books", mapping)
	require.NoError(t, err)
	twice, err := ResolvePlaceholders(once, mapping)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestUnresolvedPlaceholderIsFatal(t *testing.T) {
	t.Parallel()

	_, err := ResolvePlaceholders("select * from ${schema}.books", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "${schema}")
}

func TestSectionsWithoutMarkers(t *testing.T) {
	t.Parallel()

	sections := BreakIntoSections("SELECT * FROM foo;")
	require.Len(t, sections, 1)
	assert.Empty(t, sections[0].Name)
}

func TestSectionsRoundTrip(t *testing.T) {
	t.Parallel()

	input := `-- 1.sql

create table authors (
    id integer generated always as identity primary key,
    name text not null
);

-- 2.sql

set local lock_timeout = '2s';
alter table authors
    add column email text not null;
`
	sections := BreakIntoSections(input)
	require.Len(t, sections, 2)
	assert.Equal(t, "1.sql", sections[0].Name)
	assert.Equal(t, "2.sql", sections[1].Name)

	var joined strings.Builder
	for _, s := range sections {
		joined.WriteString(s.SQL)
	}
	assert.Equal(t, strings.TrimSpace(input), strings.TrimSpace(joined.String()))
}

func TestSectionsWithFilePrefix(t *testing.T) {
	t.Parallel()

	sections := BreakIntoSections("-- file: foo.sql\nSELECT * FROM foo;\n-- file:bar.sql\nSELECT * FROM bar;")
	require.Len(t, sections, 2)
	assert.Equal(t, "foo.sql", sections[0].Name)
	assert.Equal(t, "bar.sql", sections[1].Name)
}

func TestEugeneCommentIsNotASectionMarker(t *testing.T) {
	t.Parallel()

	sections := BreakIntoSections("-- eugene: ignore E3\nSELECT * FROM foo;")
	require.Len(t, sections, 1)
	assert.Empty(t, sections[0].Name)
}
