// SPDX-License-Identifier: Apache-2.0

// Package scripts turns raw SQL text into the per-statement inputs the
// linter and tracer consume: statements with the line number they start on,
// `-- file:` section markers, and `${NAME}` placeholder resolution.
package scripts

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"
)

// Statement is one SQL statement with the line it starts on in the script.
type Statement struct {
	LineNumber int
	SQL        string
}

// Split breaks a script into statements using the Postgres parser, so
// semicolons inside dollar-quoted bodies or string literals do not split.
// Line numbers point at the first line of actual SQL, past any leading
// blanks and comments.
func Split(sql string) ([]Statement, error) {
	pieces, err := pgq.SplitWithParser(sql, true)
	if err != nil {
		return nil, err
	}
	statements := make([]Statement, 0, len(pieces))
	offset := 0
	for _, piece := range pieces {
		start := offset
		if idx := strings.Index(sql[offset:], piece); idx >= 0 {
			start = offset + idx
			offset = start + len(piece)
		}
		statements = append(statements, Statement{
			LineNumber: 1 + strings.Count(sql[:start], "\n") + leadingCommentLines(piece),
			SQL:        strings.TrimSpace(piece),
		})
	}
	return statements, nil
}

// leadingCommentLines counts the newlines consumed by blanks, line comments
// and comment blocks before the statement text begins.
func leadingCommentLines(s string) int {
	lines := 0
	for {
		switch {
		case len(s) == 0:
			return lines
		case s[0] == '\n':
			lines++
			s = s[1:]
		case s[0] == ' ' || s[0] == '\t' || s[0] == '\r':
			s = s[1:]
		case strings.HasPrefix(s, "--"):
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return lines
			}
			lines++
			s = s[end+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return lines
			}
			lines += strings.Count(s[:end+2], "\n")
			s = s[end+2:]
		default:
			return lines
		}
	}
}

// IsConcurrently reports whether the statement must run outside a
// transaction, such as CREATE INDEX CONCURRENTLY.
func IsConcurrently(sql string) bool {
	return strings.Contains(strings.ToLower(sql), "concurrently")
}
