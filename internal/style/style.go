// Package style renders text in named ANSI colors via lipgloss. The color
// profile is pinned to basic ANSI: colored text travels over the wire and
// inside composed prompt lines, so output detection against the local stdout
// would be wrong.
package style

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var renderer = newRenderer()

// newRenderer sets the profile explicitly: the renderer otherwise detects it
// from its writer, and io.Discard is not a terminal.
func newRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI)
	return r
}

// Names is the palette selectable at runtime, e.g. by the client's /color
// command.
var Names = []string{"grey", "red", "green", "yellow", "blue", "magenta", "cyan", "white"}

var styles = map[string]lipgloss.Style{
	"grey":    renderer.NewStyle().Foreground(lipgloss.Color("8")),
	"red":     renderer.NewStyle().Foreground(lipgloss.Color("1")),
	"green":   renderer.NewStyle().Foreground(lipgloss.Color("2")),
	"yellow":  renderer.NewStyle().Foreground(lipgloss.Color("3")),
	"blue":    renderer.NewStyle().Foreground(lipgloss.Color("4")),
	"magenta": renderer.NewStyle().Foreground(lipgloss.Color("5")),
	"cyan":    renderer.NewStyle().Foreground(lipgloss.Color("6")),
	"white":   renderer.NewStyle().Foreground(lipgloss.Color("7")),
}

// Known reports whether name is a renderable color.
func Known(name string) bool {
	_, ok := styles[name]
	return ok
}

// Colored wraps text in the ANSI codes for the named color. Unknown names
// leave the text unchanged.
func Colored(text, color string) string {
	st, ok := styles[color]
	if !ok {
		return text
	}
	return st.Render(text)
}

// Width is the visible width of s with ANSI sequences stripped.
func Width(s string) int {
	return lipgloss.Width(s)
}
