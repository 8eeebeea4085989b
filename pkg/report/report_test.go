// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugene-lint/eugene/pkg/hints"
)

func sampleReport() Report {
	failing := Statement{
		Number:     1,
		LineNumber: 3,
		SQL:        "alter table books add column data json",
		Hints: []TriggeredHint{
			NewTriggeredHint(hints.AddedJSONColumn, "help for E3"),
			NewTriggeredHint(hints.DangerousLockNoTimeout, "help for E9"),
		},
	}
	passing := Statement{
		Number:     2,
		LineNumber: 4,
		SQL:        "select 1",
	}
	statements := []Statement{failing, passing}
	return Report{
		Name:            "migration.sql",
		PassedAllChecks: Passed(statements),
		Statements:      statements,
	}
}

func TestPassed(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	assert.False(t, r.PassedAllChecks)
	assert.True(t, Passed(nil))
	assert.True(t, Passed([]Statement{{SQL: "select 1"}}))
}

func TestSummaryCounts(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	r.Statements[1].Hints = append(r.Statements[1].Hints,
		NewTriggeredHint(hints.CreatingEnum, "help for W13"))

	c := r.Summary()
	assert.Equal(t, 2, c.Statements)
	assert.Equal(t, 3, c.Triggered)
	assert.Equal(t, 2, c.Errors)
	assert.Equal(t, 1, c.Warnings)
}

func TestRenderJSONOmitsAbsentLockTimeout(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleReport(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "migration.sql", decoded["name"])
	statements := decoded["statements"].([]any)
	first := statements[0].(map[string]any)
	_, present := first["lock_timeout_millis"]
	assert.False(t, present, "lint reports must not claim a lock_timeout observation")
}

func TestRenderJSONKeepsObservedLockTimeout(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	r.Statements[0].LockTimeoutMillis.Set(2000)

	out, err := Render(r, FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	first := decoded["statements"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(2000), first["lock_timeout_millis"])
}

func TestRenderYAML(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleReport(), FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, out, "passed_all_checks: false")
	assert.Contains(t, out, "id: E3")
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleReport(), FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "# Eugene 🔒 report of migration.sql")
	assert.Contains(t, out, "## Statement number 1 for line 3")
	assert.Contains(t, out, "help for E3")
	assert.Contains(t, out, "https://kaveland.no/eugene/hints/E3/")
	assert.NotContains(t, out, "Statement number 2")
}

func TestRenderPlain(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleReport(), FormatPlain)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "migration.sql:3 E3")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"json", "yaml", "markdown", "plain"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, Format(name), f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}
