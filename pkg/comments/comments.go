// SPDX-License-Identifier: Apache-2.0

// Package comments recognizes `-- eugene:` line comments that suppress hint
// reporting for a single statement.
package comments

import (
	"fmt"
	"regexp"
	"strings"
)

// Directive is the suppression instruction attached to a statement.
type Directive struct {
	// SkipAll suppresses every hint for the statement.
	SkipAll bool
	// Skip suppresses the listed hint ids.
	Skip []string
}

// Continue reports whether the statement carries no suppression at all.
func (d Directive) Continue() bool {
	return !d.SkipAll && len(d.Skip) == 0
}

// Suppresses reports whether the directive suppresses the given hint id.
func (d Directive) Suppresses(id string) bool {
	if d.SkipAll {
		return true
	}
	for _, s := range d.Skip {
		if s == id {
			return true
		}
	}
	return false
}

var directivePattern = regexp.MustCompile(`--[ \t]*eugene:[ \t]*([^\n]+)`)

// Find scans the statement text for the first `-- eugene:` instruction.
// Returns the zero Directive when there is none. Any instruction other than
// `ignore` or `ignore <id>, <id>, ...` is an error.
func Find(sql string) (Directive, error) {
	m := directivePattern.FindStringSubmatch(sql)
	if m == nil {
		return Directive{}, nil
	}
	content := strings.TrimSpace(m[1])
	if content == "ignore" {
		return Directive{SkipAll: true}, nil
	}
	if rest, ok := strings.CutPrefix(content, "ignore "); ok {
		var ids []string
		for _, id := range strings.Split(rest, ",") {
			ids = append(ids, strings.TrimSpace(id))
		}
		return Directive{Skip: ids}, nil
	}
	return Directive{}, fmt.Errorf("unknown eugene instruction: %q", content)
}
