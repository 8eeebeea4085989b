// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/eugene-lint/eugene/pkg/hints"
)

var hintsCmd = &cobra.Command{
	Use:   "hints [id]",
	Short: "Show the hint catalog, or one hint in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showHint(args[0])
		}

		rows := pterm.TableData{{"ID", "Name", "Workaround"}}
		for _, h := range hints.All {
			rows = append(rows, []string{h.ID, h.Name, h.Workaround})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func showHint(id string) error {
	h, ok := hints.ByID(id)
	if !ok {
		return &unknownHintError{id: id}
	}
	pterm.DefaultSection.Printfln("%s (%s)", h.Name, h.ID)
	pterm.Println("Triggers when: " + h.Condition)
	pterm.Println("Effect: " + h.Effect)
	pterm.Println("Workaround: " + h.Workaround)
	pterm.Println("Documentation: " + h.URL())
	if h.BadExample != "" {
		pterm.DefaultSection.WithLevel(2).Println("Problematic migration")
		pterm.Println(h.BadExample)
	}
	if h.GoodExample != "" {
		pterm.DefaultSection.WithLevel(2).Println("Safer migration")
		pterm.Println(h.GoodExample)
	}
	return nil
}

type unknownHintError struct {
	id string
}

func (e *unknownHintError) Error() string {
	return "no hint with id " + e.id
}
