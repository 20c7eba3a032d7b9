// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"lambdado-cli/internal/smoke"

	"github.com/spf13/cobra"
)

func newSmokeCommand(app *App) *cobra.Command {
	var (
		expects []string
		noWait  bool
	)

	cmd := &cobra.Command{
		Use:   "smoke <base-url>",
		Short: "Check that a running image answers with the expected bodies",
		Long: `Wait until <base-url> accepts connections, then GET every --expect path
and compare the response body exactly.`,
		Example: `  lambdado run --image my-fn --name my-fn -p 9000:8080 --detach
  lambdado smoke http://localhost:9000 --expect /a=AAA --expect /b=BBB
  lambdado stop my-fn`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}

			exps := make([]smoke.Expectation, 0, len(expects))
			for _, raw := range expects {
				exp, err := smoke.ParseExpectation(raw)
				if err != nil {
					return s.fail(err)
				}
				exps = append(exps, exp)
			}

			s.banner("Checking " + args[0])
			checker := smoke.NewChecker(smoke.WithLogger(s.logger))
			if !noWait {
				if err := checker.WaitReachable(cmd.Context(), args[0]); err != nil {
					return s.fail(err)
				}
			}
			if err := checker.Check(cmd.Context(), args[0], exps); err != nil {
				return s.fail(err)
			}
			fmt.Fprintln(app.stderr, SuccessStyle.Render(fmt.Sprintf("✓ %d check(s) passed", len(exps))))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&expects, "expect", nil, "expected response PATH=BODY (repeatable)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the endpoint to accept connections")

	return cmd
}
