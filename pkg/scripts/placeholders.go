// SPDX-License-Identifier: Apache-2.0

package scripts

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{[A-Za-z0-9]+}`)

// ResolvePlaceholders substitutes every `${NAME}` token in the script using
// the provided mapping. A token left unresolved after substitution is a
// fatal error.
func ResolvePlaceholders(sql string, mapping map[string]string) (string, error) {
	resolved := sql
	for name, value := range mapping {
		resolved = strings.ReplaceAll(resolved, "${"+name+"}", value)
	}
	if m := placeholderPattern.FindString(resolved); m != "" {
		return "", fmt.Errorf("unresolved placeholder: %s", m)
	}
	return resolved, nil
}
