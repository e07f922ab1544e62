// Package styles contains the shared styles for the terminal UI components.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type RenderFunc func(string ...string) string

const (
	Check = "✔"
	Cross = "✘"
	Bang  = "!"
	Dot   = "•"
)

const (
	ColorSuccess = "#22c55e"
	ColorWarning = "#eab308"
	ColorError   = "#d75f6b"
	ColorSubtle  = "#a3a3a3"
)

var (
	Bold = lipgloss.NewStyle().Bold(true).Render

	ErrorPad = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).PaddingLeft(1).Render
	Warning  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning)).PaddingLeft(1).Render
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)).PaddingLeft(1).Render
	Subtle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSubtle)).PaddingLeft(1).Render
)

// ErrorBox creates a bordered error box with title and message. Multi-line
// messages keep the border on every line.
func ErrorBox(title, message string) string {
	redStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	subtleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSubtle))

	lines := []string{redStyle.Render("╭ " + title)}
	for _, line := range strings.Split(message, "\n") {
		lines = append(lines, redStyle.Render("│")+" "+subtleStyle.Render(line))
	}
	lines = append(lines, redStyle.Render("╵"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
