// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Color palette shared by every CLI renderer.
const (
	// ColorPrimary is purple, used for stage banners and titles.
	ColorPrimary = lipgloss.Color("#7C3AED")

	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.Color("#6B7280")

	// ColorSuccess is green.
	ColorSuccess = lipgloss.Color("#10B981")

	// ColorError is red.
	ColorError = lipgloss.Color("#EF4444")

	// ColorWarning is amber.
	ColorWarning = lipgloss.Color("#F59E0B")

	// ColorHighlight is blue, used for command lines and image references.
	ColorHighlight = lipgloss.Color("#3B82F6")

	// ColorVerbose is light gray, used for captured command output.
	ColorVerbose = lipgloss.Color("#9CA3AF")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// WarningStyle is for warnings and hints.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle is for command lines and image references.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	// bannerRuleStyle draws the slash rules around a stage banner.
	bannerRuleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)

	// bannerPrefixStyle is for the optional header prefix line.
	bannerPrefixStyle = lipgloss.NewStyle().
				Foreground(ColorMuted).
				PaddingLeft(2)

	// bannerTitleStyle is for the upper-cased stage title.
	bannerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary).
				PaddingLeft(2)

	// renderHeaderStyle is for failure card headers (bold red).
	renderHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorError).
				MarginBottom(1)

	// renderLabelStyle is for section labels in failure cards (bold amber).
	renderLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorWarning)

	// renderValueStyle is for detail values in failure cards (gray).
	renderValueStyle = lipgloss.NewStyle().
				Foreground(ColorVerbose)

	// renderOutputStyle frames captured command output.
	renderOutputStyle = lipgloss.NewStyle().
				Foreground(ColorVerbose).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(ColorMuted).
				PaddingLeft(1)

	// renderHintStyle is for hint text at the bottom of failure cards.
	renderHintStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true).
			MarginTop(1)
)
