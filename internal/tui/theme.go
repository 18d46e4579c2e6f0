package tui

import "github.com/charmbracelet/lipgloss"

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
	Border     string
}

// BubbleColors defines message bubble colors by sender.
type BubbleColors struct {
	Own    string
	Peer   string
	System string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Header   string
	Footer   string
	Selected string
	Warning  string
	Error    string
}

// Theme defines the thread view color tokens. Colors are ANSI-256 codes.
type Theme struct {
	Name   string
	Base   BaseColors
	Bubble BubbleColors
	Chrome ChromeColors
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name: "default",
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
	},
	Bubble: BubbleColors{
		Own:    "81",
		Peer:   "147",
		System: "214",
	},
	Chrome: ChromeColors{
		Header:   "111",
		Footer:   "110",
		Selected: "75",
		Warning:  "220",
		Error:    "203",
	},
}

// HighContrastTheme trades subtlety for legibility.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Base: BaseColors{
		Background: "16",
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
		Border:     "231",
	},
	Bubble: BubbleColors{
		Own:    "51",
		Peer:   "226",
		System: "208",
	},
	Chrome: ChromeColors{
		Header:   "231",
		Footer:   "231",
		Selected: "51",
		Warning:  "226",
		Error:    "196",
	},
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ThemeByName returns the named theme, falling back to DefaultTheme.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return DefaultTheme
}

// styles are the prebuilt lipgloss styles for one theme.
type styles struct {
	theme Theme

	header    lipgloss.Style
	muted     lipgloss.Style
	footer    lipgloss.Style
	warning   lipgloss.Style
	errorText lipgloss.Style
	own       lipgloss.Style
	peer      lipgloss.Style
	system    lipgloss.Style
	sender    lipgloss.Style
	media     lipgloss.Style
	selected  lipgloss.Style
	marker    lipgloss.Style
}

func newStyles(theme Theme) styles {
	return styles{
		theme:     theme,
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Chrome.Header)),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Muted)),
		footer:    lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.Footer)),
		warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.Warning)).Bold(true),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.Error)),
		own:       lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Bubble.Own)),
		peer:      lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Bubble.Peer)),
		system:    lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Bubble.System)).Italic(true),
		sender:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Base.Accent)),
		media:     lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Muted)).Italic(true),
		selected:  lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Chrome.Selected)).Bold(true),
		marker:    lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Border)),
	}
}
