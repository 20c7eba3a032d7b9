// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"lambdado-cli/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates `lambdado config`, which prints the resolved
// configuration as CUE.
func newConfigCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration resolved from defaults, LAMBDADO_* environment
variables and flags, as CUE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{Flags: cmd.Flags()})
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	}
}
