// Package style holds the colors and icons shared by every terminal renderer.
package style

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
	Cyan   = lipgloss.Color("#0EA5E9")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Arrow   = "→"
	Dot     = "●"
)

// Heading renders section titles in command output.
var Heading = lipgloss.NewStyle().Bold(true).Foreground(Iris)

// Label renders the left column of key/value tables.
var Label = lipgloss.NewStyle().Foreground(Slate).Width(18)
