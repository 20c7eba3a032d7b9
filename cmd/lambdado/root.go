// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand creates the lambdado command tree bound to app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "lambdado",
		Short: "Release container images to AWS Lambda",
		Long: TitleStyle.Render("lambdado") + SubtitleStyle.Render(" - Release container images to AWS Lambda") + `

lambdado builds an image with docker, pushes it to ECR and points a Lambda
function at the pushed image digest, waiting for the function to settle
before and after the update. Re-running a deploy with the same inputs is safe.

` + SubtitleStyle.Render("Examples:") + `
  lambdado deploy --dir . --image my-fn \
    --registry 123456789012.dkr.ecr.us-east-1.amazonaws.com/my-fn \
    --function my-fn
  lambdado update --function my-fn --image-uri <repo>@sha256:<hex>
  lambdado purge --registry 123456789012.dkr.ecr.us-east-1.amazonaws.com/my-fn

` + SubtitleStyle.Render("Environment:") + `
  Every global flag can be set as LAMBDADO_<KEY>, e.g. LAMBDADO_CREDENTIALS=cli
  or LAMBDADO_POLL_MAX_ATTEMPTS=120.`,
	}

	pf := root.PersistentFlags()
	pf.BoolP("verbose", "v", false, "enable debug logging and detailed failure help")
	pf.String("header-prefix", "", "prefix printed in every stage banner and log line")
	pf.String("log-level", "info", "minimum log level (debug, info, warn, error)")
	pf.String("engine-binary", "docker", "docker-compatible CLI used for images and containers")
	pf.String("aws-binary", "aws", "aws CLI used when --credentials=cli")
	pf.String("credentials", "sdk", "registry credential source (sdk, cli)")
	pf.String("aws-endpoint", "", "override the ECR and Lambda endpoint URL")
	pf.Duration("poll-interval", 5*time.Second, "delay between function status polls")
	pf.Int("poll-max-attempts", 60, "function status polls before giving up")

	root.AddCommand(
		newDeployCommand(app),
		newBuildCommand(app),
		newPushCommand(app),
		newUpdateCommand(app),
		newWaitCommand(app),
		newPurgeCommand(app),
		newRunCommand(app),
		newStopCommand(app),
		newSmokeCommand(app),
		newConfigCommand(app),
	)

	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the failure, if any.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})

	// Pass version via fang.WithVersion() since fang overrides root.Version
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// handleError skips errors whose failure card was already printed and lets
// fang render the rest (usage errors, unknown flags).
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.rendered {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
