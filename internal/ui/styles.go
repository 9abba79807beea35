package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ─── Palette ─────────────────────────────────────────────────────────────────

var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#7c3aed", Dark: "#a78bfa"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}
	ColorGreen   = lipgloss.AdaptiveColor{Light: "#16a34a", Dark: "#4ade80"}
	ColorYellow  = lipgloss.AdaptiveColor{Light: "#ca8a04", Dark: "#facc15"}
	ColorRed     = lipgloss.AdaptiveColor{Light: "#dc2626", Dark: "#f87171"}
	ColorCyan    = lipgloss.AdaptiveColor{Light: "#0891b2", Dark: "#22d3ee"}
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
