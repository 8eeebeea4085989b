// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"sigs.k8s.io/yaml"
)

// Format selects a report rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
)

// ParseFormat validates a format name from the CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML, FormatMarkdown, FormatPlain:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown report format: %q", s)
	}
}

// Render serializes the report in the requested format.
func Render(r Report, f Format) (string, error) {
	switch f {
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return "", err
		}
		return buf.String(), nil
	case FormatYAML:
		b, err := yaml.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case FormatMarkdown:
		return renderMarkdown(r)
	case FormatPlain:
		return renderPlain(r), nil
	default:
		return "", fmt.Errorf("unknown report format: %q", f)
	}
}

const markdownTemplate = `# Eugene 🔒 report{{if .Name}} of {{.Name}}{{end}}

{{if .PassedAllChecks}}No checks matched.{{else}}This report matched checks.{{end}}

{{range .Statements}}{{if .Hints}}## Statement number {{.Number}} for line {{.LineNumber}}

### SQL

` + "```sql\n{{.SQL}}\n```" + `
{{range .Hints}}
### {{.Name}} ({{.ID}})

{{.Help}}

{{.Effect}}. A safer way to do this: {{.Workaround}}.

See [the {{.ID}} hint page]({{.URL}}).
{{end}}{{end}}{{end}}`

var mdTemplate = template.Must(template.New("report").Parse(markdownTemplate))

func renderMarkdown(r Report) (string, error) {
	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderPlain(r Report) string {
	var b strings.Builder
	for _, s := range r.Statements {
		for _, h := range s.Hints {
			name := r.Name
			if name == "" {
				name = "script"
			}
			fmt.Fprintf(&b, "%s:%d %s %s: %s\n", name, s.LineNumber, h.ID, h.Name, h.Help)
		}
	}
	if r.PassedAllChecks {
		b.WriteString("passed all checks\n")
	}
	return b.String()
}
