// SPDX-License-Identifier: Apache-2.0

package lint

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/eugene-lint/eugene/pkg/comments"
	"github.com/eugene-lint/eugene/pkg/report"
	"github.com/eugene-lint/eugene/pkg/scripts"
)

// Script lints a whole SQL script and reports every statement with the
// hints it triggered. Hints listed in ignoredHints are suppressed globally;
// `-- eugene:` directives suppress hints per statement.
func Script(name, sql string, ignoredHints []string) (report.Report, error) {
	statements, err := scripts.Split(sql)
	if err != nil {
		return report.Report{}, fmt.Errorf("splitting script %q: %w", name, err)
	}

	ignored := map[string]bool{}
	for _, id := range ignoredHints {
		ignored[id] = true
	}

	var state TransactionState
	var entries []report.Statement
	number := 1
	for _, stmt := range statements {
		directive, err := comments.Find(stmt.SQL)
		if err != nil {
			return report.Report{}, fmt.Errorf("statement at line %d: %w", stmt.LineNumber, err)
		}
		tree, err := pgq.Parse(stmt.SQL)
		if err != nil {
			return report.Report{}, fmt.Errorf("parsing statement at line %d (%s): %w", stmt.LineNumber, stmt.SQL, err)
		}
		for _, raw := range tree.GetStmts() {
			summary, err := Summarize(raw.GetStmt())
			if err != nil {
				return report.Report{}, fmt.Errorf("statement at line %d (%s): %w", stmt.LineNumber, stmt.SQL, err)
			}

			ctx := Context{State: &state, Statement: summary}
			var triggered []report.TriggeredHint
			for _, rule := range Rules {
				if ignored[rule.ID()] || directive.Suppresses(rule.ID()) {
					continue
				}
				if help, ok := rule.Check(ctx); ok {
					triggered = append(triggered, report.NewTriggeredHint(rule.Hint, help))
				}
			}

			entries = append(entries, report.Statement{
				Number:     number,
				LineNumber: stmt.LineNumber,
				SQL:        stmt.SQL,
				Hints:      triggered,
			})
			state.Update(summary)
			number++
		}
	}

	return report.Report{
		Name:            name,
		PassedAllChecks: report.Passed(entries),
		Statements:      entries,
	}, nil
}
