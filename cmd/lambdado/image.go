// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"lambdado-cli/internal/container"
	"lambdado-cli/pkg/imageref"

	"github.com/spf13/cobra"
)

func newBuildCommand(app *App) *cobra.Command {
	var opts container.BuildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a local image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}

			s.banner("Building docker image " + opts.Tag)
			if err := s.engine.Build(cmd.Context(), opts); err != nil {
				return s.fail(err)
			}
			fmt.Fprintln(app.stderr, SuccessStyle.Render("✓ Built "+opts.Tag))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ContextDir, "dir", ".", "build context directory")
	cmd.Flags().StringVar(&opts.Dockerfile, "dockerfile", "", "Dockerfile path relative to --dir")
	cmd.Flags().StringVar(&opts.Tag, "image", "", "local image name")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "build platform, e.g. linux/arm64")
	cmd.Flags().StringToStringVar(&opts.BuildArgs, "build-arg", nil, "build-time variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "do not use the build cache")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func newPushCommand(app *App) *cobra.Command {
	var local, registryURI string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push a local image and print its digest-addressed URI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}
			target, err := imageref.Parse(registryURI)
			if err != nil {
				return s.fail(err)
			}

			s.banner("Pushing " + local + " to " + target.String())
			res, err := s.publisher().Publish(cmd.Context(), local, target)
			if err != nil {
				return s.fail(err)
			}
			fmt.Fprintf(app.stderr, "%s %s\n", SuccessStyle.Render("✓ Pushed image URI:"), CmdStyle.Render(res.URI.String()))
			fmt.Fprintln(app.stdout, res.URI.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&local, "image", "", "local image name")
	cmd.Flags().StringVar(&registryURI, "registry", "", "target repository URI, host/name[:tag]")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("registry")

	return cmd
}

func newRunCommand(app *App) *cobra.Command {
	var (
		opts  container.RunOptions
		ports []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an image locally",
		Long: `Run an image locally, e.g. to smoke test a function image through the
Lambda runtime interface emulator before deploying it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}

			for _, p := range ports {
				mapping, err := container.ParsePortMapping(p)
				if err != nil {
					return s.fail(err)
				}
				opts.Ports = append(opts.Ports, mapping)
			}

			title := "Running docker image " + opts.Image
			if opts.Name != "" {
				title += " as " + opts.Name
			}
			s.banner(title)
			if err := s.engine.Run(cmd.Context(), opts); err != nil {
				return s.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Image, "image", "", "image to run")
	cmd.Flags().StringVar(&opts.Name, "name", "", "container name")
	cmd.Flags().StringArrayVarP(&ports, "port", "p", nil, "port mapping HOST:CONTAINER[/PROTO] (repeatable)")
	cmd.Flags().StringToStringVarP(&opts.Env, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", false, "run in the background")
	cmd.Flags().BoolVar(&opts.Remove, "rm", true, "remove the container when it exits")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func newStopCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a locally running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd)
			if err != nil {
				return app.fail(err)
			}

			s.banner("Stopping docker container " + args[0])
			if err := s.engine.Stop(cmd.Context(), args[0]); err != nil {
				return s.fail(err)
			}
			return nil
		},
	}
}
