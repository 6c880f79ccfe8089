// Package ui provides terminal styling for migrator output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

// SeparatorLight separates summary sections.
const SeparatorLight = "──────────────────────────────────────────"

// ShouldUseColor reports whether output to w should be colored. NO_COLOR
// and CLICOLOR=0 disable color; CLICOLOR_FORCE enables it off a terminal.
func ShouldUseColor(w io.Writer) bool {
	if termenv.EnvNoColor() {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Theme holds the styles for one output stream.
type Theme struct {
	Pass     lipgloss.Style
	Warn     lipgloss.Style
	Fail     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Category lipgloss.Style
}

// NewTheme returns styles rendering for w. Without color every style
// renders plain text.
func NewTheme(w io.Writer, color bool) *Theme {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Theme{
		Pass:     r.NewStyle().Foreground(ColorPass),
		Warn:     r.NewStyle().Foreground(ColorWarn),
		Fail:     r.NewStyle().Foreground(ColorFail),
		Muted:    r.NewStyle().Foreground(ColorMuted),
		Accent:   r.NewStyle().Foreground(ColorAccent),
		Category: r.NewStyle().Bold(true).Foreground(ColorAccent),
	}
}

// RenderCategory renders a section header in uppercase.
func (t *Theme) RenderCategory(s string) string {
	return t.Category.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color.
func (t *Theme) RenderSeparator() string {
	return t.Muted.Render(SeparatorLight)
}

// RenderPassIcon renders the pass icon with styling
func (t *Theme) RenderPassIcon() string {
	return t.Pass.Render(IconPass)
}

// RenderWarnIcon renders the warning icon with styling
func (t *Theme) RenderWarnIcon() string {
	return t.Warn.Render(IconWarn)
}

// RenderFailIcon renders the fail icon with styling
func (t *Theme) RenderFailIcon() string {
	return t.Fail.Render(IconFail)
}

// RenderSkipIcon renders the skip icon with styling
func (t *Theme) RenderSkipIcon() string {
	return t.Muted.Render(IconSkip)
}

// RenderInfoIcon renders the info icon with styling
func (t *Theme) RenderInfoIcon() string {
	return t.Accent.Render(IconInfo)
}
