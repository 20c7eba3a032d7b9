// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"lambdado-cli/internal/config"
	"lambdado-cli/internal/container"
	"lambdado-cli/internal/converge"
	"lambdado-cli/internal/deploy"
	"lambdado-cli/internal/functions"
	"lambdado-cli/internal/issue"
	"lambdado-cli/internal/procrun"
	"lambdado-cli/internal/publish"
	"lambdado-cli/internal/pushdigest"
	"lambdado-cli/internal/registry"
	"lambdado-cli/internal/smoke"
	"lambdado-cli/pkg/imageref"
)

const (
	bannerWidth = 80
	// maxOutputLines bounds how much captured output a failure card shows.
	maxOutputLines = 40
)

// renderBanner renders a stage header: a slash rule, the optional prefix, the
// upper-cased title and a closing rule.
func renderBanner(prefix, title string) string {
	var sb strings.Builder

	rule := bannerRuleStyle.Render(strings.Repeat("/", bannerWidth))
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n")
	if prefix != "" {
		sb.WriteString(bannerPrefixStyle.Render(prefix))
		sb.WriteString("\n")
	}
	sb.WriteString(bannerTitleStyle.Render(strings.ToUpper(title)))
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n\n")

	return sb.String()
}

// renderFailure renders a failure card for err: the failing stage, the
// offending command line with its captured output, suggestions, and a hint
// when the failure looks transient.
func renderFailure(err error, verbose bool) string {
	var sb strings.Builder

	header := "✗ Deployment step failed"
	var stageErr *deploy.StageError
	if errors.As(err, &stageErr) {
		header = fmt.Sprintf("✗ %s failed", stageErr.Stage)
	}
	sb.WriteString(renderHeaderStyle.Render(header))
	sb.WriteString("\n")

	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		sb.WriteString(ae.Format(verbose))
	} else {
		sb.WriteString(err.Error())
	}
	sb.WriteString("\n")

	var cmdErr *procrun.ExternalCommandError
	if errors.As(err, &cmdErr) {
		sb.WriteString("\n")
		sb.WriteString(renderLabelStyle.Render("Command:"))
		sb.WriteString(" ")
		sb.WriteString(CmdStyle.Render(cmdErr.CommandLine()))
		sb.WriteString("\n")
		sb.WriteString(renderLabelStyle.Render("Exit code:"))
		sb.WriteString(" ")
		sb.WriteString(renderValueStyle.Render(fmt.Sprint(cmdErr.ExitCode)))
		sb.WriteString("\n")
		if out := tailLines(cmdErr.Output, maxOutputLines); out != "" {
			sb.WriteString(renderLabelStyle.Render("Output:"))
			sb.WriteString("\n")
			sb.WriteString(renderOutputStyle.Render(out))
			sb.WriteString("\n")
		}
	}

	var timeout *converge.ConvergenceTimeoutError
	if errors.As(err, &timeout) && timeout.Last.Reason != "" {
		sb.WriteString(renderLabelStyle.Render("Last status:"))
		sb.WriteString(" ")
		sb.WriteString(renderValueStyle.Render(string(timeout.Last.State) + ": " + timeout.Last.Reason))
		sb.WriteString("\n")
	}

	if procrun.IsTransient(err) {
		sb.WriteString(renderHintStyle.Render("This looks transient. The pipeline is idempotent: run it again."))
		sb.WriteString("\n")
	}

	return sb.String()
}

// writeFailure prints the failure card and, in verbose mode, the catalog page
// matching err.
func writeFailure(w io.Writer, err error, verbose bool) {
	fmt.Fprint(w, renderFailure(err, verbose))

	if !verbose {
		return
	}
	id, ok := classifyIssue(err)
	if !ok {
		return
	}
	if entry := issue.Get(id); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			fmt.Fprintln(w, WarningStyle.Render("failed to render help: "+renderErr.Error()))
			return
		}
		fmt.Fprint(w, rendered)
	}
}

// classifyIssue picks the catalog page describing err.
func classifyIssue(err error) (issue.Id, bool) {
	var engineErr *container.ErrEngineNotAvailable
	switch {
	case err == nil:
		return 0, false
	case errors.As(err, &engineErr), errors.Is(err, exec.ErrNotFound):
		return issue.EngineNotFoundId, true
	case errors.Is(err, imageref.ErrMalformedReference):
		return issue.MalformedReferenceId, true
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigInvalidId, true
	case errors.Is(err, publish.ErrAuthentication):
		return issue.AuthenticationFailedId, true
	case errors.Is(err, pushdigest.ErrDigestNotFound):
		return issue.DigestNotFoundId, true
	case errors.Is(err, converge.ErrConvergenceTimeout):
		return issue.ConvergenceTimeoutId, true
	case errors.Is(err, converge.ErrUpdateFailed):
		return issue.UpdateFailedId, true
	case errors.Is(err, functions.ErrFunctionNotFound):
		return issue.FunctionNotFoundId, true
	case errors.Is(err, registry.ErrRepositoryNotFound):
		return issue.RepositoryNotFoundId, true
	case errors.Is(err, smoke.ErrCheckFailed), errors.Is(err, smoke.ErrUnreachable):
		return issue.SmokeCheckFailedId, true
	}
	if id, ok := issue.IssueOf(err); ok {
		return id, true
	}
	if errors.Is(err, procrun.ErrExternalCommand) {
		return issue.ExternalCommandFailedId, true
	}
	return 0, false
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return fmt.Sprintf("... %d lines omitted\n%s", len(lines)-n, strings.Join(lines[len(lines)-n:], "\n"))
}
