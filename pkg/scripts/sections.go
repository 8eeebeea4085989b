// SPDX-License-Identifier: Apache-2.0

package scripts

import (
	"regexp"
	"strings"
)

// Section is a named slice of a script, delimited by `-- file: NAME.sql`
// comments. Scripts without markers form a single unnamed section.
type Section struct {
	Name string
	SQL  string
}

// Accepts `-- file: migrations/V1__init.sql` and the shorthand `-- 1.sql`.
var sectionMarker = regexp.MustCompile(`(?m)^--\s*(?:file:\s*)?([^\s;:]+\.sql)\s*$`)

// BreakIntoSections splits a script on `-- file:` markers. The marker line
// belongs to the section it opens, so concatenating the sections
// reproduces the input modulo surrounding whitespace.
func BreakIntoSections(sql string) []Section {
	markers := sectionMarker.FindAllStringSubmatchIndex(sql, -1)
	if len(markers) == 0 {
		return []Section{{SQL: sql}}
	}
	var sections []Section
	if head := sql[:markers[0][0]]; strings.TrimSpace(head) != "" {
		sections = append(sections, Section{SQL: head})
	}
	for i, m := range markers {
		end := len(sql)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		sections = append(sections, Section{
			Name: sql[m[2]:m[3]],
			SQL:  sql[m[0]:end],
		})
	}
	return sections
}
