// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eugene-lint/eugene/cmd/flags"
)

// Version is the eugene version
var Version = "development"

func init() {
	viper.SetEnvPrefix("EUGENE")
	viper.AutomaticEnv()

	flags.RegisterRootFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "eugene",
	Short:        "Careful with That Lock, Eugene: lint and trace Postgres migration scripts",
	SilenceUsage: true,
	Version:      Version,
}

// Execute executes the root command.
func Execute() error {
	// register subcommands
	rootCmd.AddCommand(lintCmd())
	rootCmd.AddCommand(traceCmd())
	rootCmd.AddCommand(hintsCmd)

	return rootCmd.Execute()
}
