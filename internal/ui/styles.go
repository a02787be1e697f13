package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme defines the color palette for CLI output
type Theme struct {
	Primary   lipgloss.Color // accents, strong text
	Secondary lipgloss.Color // headers, borders
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Muted     lipgloss.Color // dimmed/secondary text
	Text      lipgloss.Color // primary text

	// Diff backgrounds
	DiffAddBg    lipgloss.Color
	DiffRemoveBg lipgloss.Color
}

// DefaultTheme returns the default color theme (gruvbox)
func DefaultTheme() *Theme {
	return &Theme{
		Primary:      lipgloss.Color("#b8bb26"), // gruvbox green
		Secondary:    lipgloss.Color("#83a598"), // gruvbox aqua
		Success:      lipgloss.Color("#b8bb26"),
		Error:        lipgloss.Color("#fb4934"), // gruvbox red
		Warning:      lipgloss.Color("#fabd2f"), // gruvbox yellow
		Muted:        lipgloss.Color("#928374"), // gruvbox gray
		Text:         lipgloss.Color("#ebdbb2"), // gruvbox foreground
		DiffAddBg:    lipgloss.Color("#32361a"),
		DiffRemoveBg: lipgloss.Color("#3c1f1e"),
	}
}

// Status indicators
const (
	SuccessIcon = "✓"
	FailIcon    = "✗"
)

// Styles returns styled text helpers bound to a renderer
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Label   lipgloss.Style // left column of key/value output

	// Diff styles
	DiffAdd     lipgloss.Style // Added lines (+)
	DiffRemove  lipgloss.Style // Removed lines (-)
	DiffContext lipgloss.Style // Context lines (unchanged)
	LineNumber  lipgloss.Style
}

// NewStyles creates styles for the given output. Colors are dropped when w
// is not a terminal.
func NewStyles(w io.Writer) *Styles {
	theme := DefaultTheme()
	r := lipgloss.NewRenderer(w)

	return &Styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(theme.Text),

		Success: r.NewStyle().
			Foreground(theme.Success),

		Error: r.NewStyle().
			Foreground(theme.Error),

		Warning: r.NewStyle().
			Foreground(theme.Warning),

		Muted: r.NewStyle().
			Foreground(theme.Muted),

		Bold: r.NewStyle().
			Bold(true),

		Label: r.NewStyle().
			Foreground(theme.Secondary).
			Width(8),

		DiffAdd: r.NewStyle().
			Foreground(theme.Success).
			Background(theme.DiffAddBg),

		DiffRemove: r.NewStyle().
			Foreground(theme.Error).
			Background(theme.DiffRemoveBg),

		DiffContext: r.NewStyle().
			Foreground(theme.Text),

		LineNumber: r.NewStyle().
			Foreground(theme.Muted),
	}
}

// FormatResult returns a styled success/fail result
func (s *Styles) FormatResult(success bool, msg string) string {
	if success {
		return s.Success.Render(SuccessIcon+" ") + msg
	}
	return s.Error.Render(FailIcon+" ") + msg
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or fallback when unknown.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// Truncate shortens a string to maxLen runes with ellipsis
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// GlamourStyle returns the glamour style used to render notes
func GlamourStyle() ansi.StyleConfig {
	return GlamourStyleFromTheme(DefaultTheme())
}

// GlamourStyleFromTheme creates a glamour StyleConfig from the given theme.
// Notes only carry paragraphs with bold and italic runs.
func GlamourStyleFromTheme(theme *Theme) ansi.StyleConfig {
	primary := string(theme.Primary)
	secondary := string(theme.Secondary)
	warning := string(theme.Warning)
	text := string(theme.Text)

	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &text,
			},
		},
		Paragraph: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &text,
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &secondary,
				Bold:  boolPtr(true),
			},
		},
		Emph: ansi.StylePrimitive{
			Color:  &warning,
			Italic: boolPtr(true),
		},
		Strong: ansi.StylePrimitive{
			Bold:  boolPtr(true),
			Color: &primary,
		},
	}
}

func boolPtr(b bool) *bool { return &b }
