// Package ui provides the terminal styles used by CLI output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderPass styles a success glyph or message.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles a warning glyph or message.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles a failure glyph or message.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent styles an informational glyph or message.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim styles secondary detail text.
func RenderDim(s string) string { return dimStyle.Render(s) }
