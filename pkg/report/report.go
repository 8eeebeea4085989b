// SPDX-License-Identifier: Apache-2.0

// Package report holds the data model shared by lint and trace runs: one
// entry per statement, the hints it triggered, and a pass flag for the
// whole script.
package report

import (
	"github.com/oapi-codegen/nullable"

	"github.com/eugene-lint/eugene/pkg/hints"
)

// TriggeredHint is one finding attached to a statement, drawn from the
// static hint catalog plus a statement-specific help message.
type TriggeredHint struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Condition  string `json:"condition"`
	Effect     string `json:"effect"`
	Workaround string `json:"workaround"`
	Help       string `json:"help"`
	URL        string `json:"url"`
}

// NewTriggeredHint pairs a catalog hint with the help message a rule
// rendered for a concrete statement.
func NewTriggeredHint(h hints.Hint, help string) TriggeredHint {
	return TriggeredHint{
		ID:         h.ID,
		Name:       h.Name,
		Condition:  h.Condition,
		Effect:     h.Effect,
		Workaround: h.Workaround,
		Help:       help,
		URL:        h.URL(),
	}
}

// LockTaken describes one lock acquired by a traced statement.
type LockTaken struct {
	Schema         string   `json:"schema"`
	Object         string   `json:"object_name"`
	RelKind        string   `json:"relkind"`
	Mode           string   `json:"mode"`
	Dangerous      bool     `json:"dangerous"`
	BlockedQueries []string `json:"blocked_queries,omitempty"`
}

// Statement is the report entry for a single SQL statement.
//
// The trace-only fields stay empty for lint runs. LockTimeoutMillis is
// absent for lint runs and for concurrent-mode statements, where no
// transaction was open to observe it.
type Statement struct {
	Number            int                      `json:"statement_number"`
	LineNumber        int                      `json:"line_number"`
	SQL               string                   `json:"sql"`
	DurationMillis    int64                    `json:"duration_millis"`
	LockTimeoutMillis nullable.Nullable[int64] `json:"lock_timeout_millis,omitempty"`
	NewLocks          []LockTaken              `json:"new_locks_taken,omitempty"`
	Hints             []TriggeredHint          `json:"triggered_hints"`
}

// Report is the outcome of linting or tracing one script.
type Report struct {
	Name            string      `json:"name,omitempty"`
	PassedAllChecks bool        `json:"passed_all_checks"`
	Statements      []Statement `json:"statements"`
}

// Passed recomputes the pass flag from the statement entries.
func Passed(statements []Statement) bool {
	for _, s := range statements {
		if len(s.Hints) > 0 {
			return false
		}
	}
	return true
}

// Counts are the aggregate totals for a report.
type Counts struct {
	Statements int `json:"statements"`
	Triggered  int `json:"triggered_hints"`
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
}

// Summary tallies statements and triggered hints by class.
func (r Report) Summary() Counts {
	c := Counts{Statements: len(r.Statements)}
	for _, s := range r.Statements {
		for _, h := range s.Hints {
			c.Triggered++
			if len(h.ID) > 0 && h.ID[0] == 'E' {
				c.Errors++
			} else {
				c.Warnings++
			}
		}
	}
	return c
}
