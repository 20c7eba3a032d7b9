// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"lambdado-cli/internal/deploy"
	"lambdado-cli/internal/issue"
	"lambdado-cli/pkg/imageref"

	"github.com/spf13/cobra"
)

type (
	deployFlags struct {
		dir        string
		dockerfile string
		image      string
		platform   string
		registry   string
		function   string
		region     string
		report     string
	}

	updateFlags struct {
		function string
		imageURI string
		region   string
		report   string
	}
)

func newDeployCommand(app *App) *cobra.Command {
	var flags deployFlags

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, push and roll out an image to a function",
		Long: `Build the image in --dir, push it to --registry, wait for any in-flight
change on --function to settle, point the function at the pushed digest and
wait for the update to settle.

The region defaults to the one embedded in the registry host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, app, flags)
		},
	}

	cmd.Flags().StringVar(&flags.dir, "dir", ".", "build context directory")
	cmd.Flags().StringVar(&flags.dockerfile, "dockerfile", "", "Dockerfile path relative to --dir")
	cmd.Flags().StringVar(&flags.image, "image", "", "local image name to build")
	cmd.Flags().StringVar(&flags.platform, "platform", "", "build platform, e.g. linux/arm64")
	cmd.Flags().StringVar(&flags.registry, "registry", "", "target repository URI, host/name[:tag]")
	cmd.Flags().StringVar(&flags.function, "function", "", "function name or ARN")
	cmd.Flags().StringVar(&flags.region, "region", "", "function region (default: the registry's region)")
	cmd.Flags().StringVar(&flags.report, "report", "", "write a TOML run report to this file")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("registry")
	_ = cmd.MarkFlagRequired("function")

	return cmd
}

func runDeploy(cmd *cobra.Command, app *App, flags deployFlags) error {
	s, err := app.newSession(cmd)
	if err != nil {
		return app.fail(err)
	}

	target, err := imageref.Parse(flags.registry)
	if err != nil {
		return s.fail(err)
	}

	s.subject[deploy.StateBuilding] = flags.image
	s.subject[deploy.StatePushing] = target.String()
	s.subject[deploy.StateAwaitingPriorConvergence] = flags.function
	s.subject[deploy.StateUpdatingFunctionCode] = flags.function
	s.subject[deploy.StateSucceeded] = flags.function

	res, err := s.orchestrator().Deploy(cmd.Context(), deploy.Request{
		SourceDir:  flags.dir,
		Dockerfile: flags.dockerfile,
		ImageName:  flags.image,
		Platform:   flags.platform,
		Registry:   target,
		Function:   flags.function,
		Region:     flags.region,
	})
	return s.finishRollout(res, err, flags.report)
}

func newUpdateCommand(app *App) *cobra.Command {
	var flags updateFlags

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Point a function at an already pushed image digest",
		Long: `Wait for any in-flight change on --function to settle, point it at
--image-uri and wait for the update to settle. The image must be
digest-addressed (host/name@sha256:<hex>), as printed by 'lambdado push'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, app, flags)
		},
	}

	cmd.Flags().StringVar(&flags.function, "function", "", "function name or ARN")
	cmd.Flags().StringVar(&flags.imageURI, "image-uri", "", "digest-addressed image URI")
	cmd.Flags().StringVar(&flags.region, "region", "", "function region (default: the image's region)")
	cmd.Flags().StringVar(&flags.report, "report", "", "write a TOML run report to this file")
	_ = cmd.MarkFlagRequired("function")
	_ = cmd.MarkFlagRequired("image-uri")

	return cmd
}

func runUpdate(cmd *cobra.Command, app *App, flags updateFlags) error {
	s, err := app.newSession(cmd)
	if err != nil {
		return app.fail(err)
	}

	image, err := imageref.Parse(flags.imageURI)
	if err != nil {
		return s.fail(err)
	}

	s.subject[deploy.StateAwaitingPriorConvergence] = flags.function
	s.subject[deploy.StateUpdatingFunctionCode] = flags.function
	s.subject[deploy.StateSucceeded] = flags.function

	res, err := s.orchestrator().Rollout(cmd.Context(), flags.function, flags.region, image)
	return s.finishRollout(res, err, flags.report)
}

// finishRollout writes the optional report and prints the outcome of a
// Deploy or Rollout.
func (s *session) finishRollout(res *deploy.Result, runErr error, reportPath string) error {
	if res != nil && reportPath != "" {
		if err := deploy.NewReport(res, runErr).WriteFile(reportPath); err != nil {
			reportErr := issue.WrapWithContext(err, "write deployment report", reportPath)
			if runErr == nil {
				return s.fail(reportErr)
			}
			s.logger.Warn(reportErr.Error())
		} else {
			s.logger.Info("report written", "path", reportPath)
		}
	}
	if runErr != nil {
		return s.fail(runErr)
	}

	fmt.Fprintf(s.app.stderr, "%s %s\n", SuccessStyle.Render("✓ Function:"), res.Function+" at "+res.Region)
	fmt.Fprintf(s.app.stderr, "%s %s\n", SuccessStyle.Render("✓ Image:"), CmdStyle.Render(res.Image.String()))
	fmt.Fprintln(s.app.stdout, res.Image.String())
	return nil
}

func newWaitCommand(app *App) *cobra.Command {
	var function, region string

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until a function's last update has settled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}
			if region == "" {
				return s.fail(fmt.Errorf("%w: --region is required", deploy.ErrInvalidRequest))
			}

			s.banner("Waiting for function " + function)
			if err := s.orchestrator().AwaitConvergence(cmd.Context(), function, region); err != nil {
				return s.fail(err)
			}
			fmt.Fprintln(app.stderr, SuccessStyle.Render("✓ "+function+" is up to date"))
			return nil
		},
	}

	cmd.Flags().StringVar(&function, "function", "", "function name or ARN")
	cmd.Flags().StringVar(&region, "region", "", "function region")
	_ = cmd.MarkFlagRequired("function")

	return cmd
}

func newPurgeCommand(app *App) *cobra.Command {
	var registryURI string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every image in a repository",
		Long: `Delete every image in the repository named by --registry with a single
batch request. An empty repository is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}
			uri, err := imageref.Parse(registryURI)
			if err != nil {
				return s.fail(err)
			}

			s.banner("Deleting all images from " + uri.WithoutTag())
			deleted, err := s.orchestrator().PurgeAllImages(cmd.Context(), uri)
			if err != nil {
				return s.fail(err)
			}
			if deleted == 0 {
				fmt.Fprintln(app.stderr, "Nothing to delete")
				return nil
			}
			fmt.Fprintln(app.stderr, SuccessStyle.Render(fmt.Sprintf("✓ Deleted %d image(s)", deleted)))
			return nil
		},
	}

	cmd.Flags().StringVar(&registryURI, "registry", "", "repository URI, host/name")
	_ = cmd.MarkFlagRequired("registry")

	return cmd
}
