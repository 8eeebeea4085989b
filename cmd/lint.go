// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eugene-lint/eugene/cmd/flags"
	"github.com/eugene-lint/eugene/pkg/lint"
	"github.com/eugene-lint/eugene/pkg/report"
	"github.com/eugene-lint/eugene/pkg/scripts"
)

var errFailedChecks = fmt.Errorf("report did not pass all checks")

func lintCmd() *cobra.Command {
	lintCmd := &cobra.Command{
		Use:       "lint <path to SQL script>",
		Short:     "Lint a migration script without running it",
		Long:      "Lint a migration script by analyzing its parse tree. The script can be read from a file or from stdin with `-`.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"script"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, sql, err := readScript(args)
			if err != nil {
				return err
			}
			sql, err = resolvePlaceholders(sql)
			if err != nil {
				return err
			}

			r, err := lint.Script(name, sql, flags.IgnoredHints())
			if err != nil {
				return err
			}
			return emitReport(cmd.OutOrStdout(), r)
		},
	}

	return lintCmd
}

func readScript(args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		sql, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading script from stdin: %w", err)
		}
		return "", string(sql), nil
	}
	sql, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("reading script: %w", err)
	}
	return args[0], string(sql), nil
}

func resolvePlaceholders(sql string) (string, error) {
	mapping := map[string]string{}
	for _, pair := range flags.Placeholders() {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return "", fmt.Errorf("invalid placeholder %q, expected NAME=value", pair)
		}
		mapping[name] = value
	}
	return scripts.ResolvePlaceholders(sql, mapping)
}

func emitReport(out io.Writer, r report.Report) error {
	format, err := report.ParseFormat(flags.Format())
	if err != nil {
		return err
	}
	rendered, err := report.Render(r, format)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)

	if !r.PassedAllChecks && !flags.AcceptFailures() {
		return errFailedChecks
	}
	return nil
}
