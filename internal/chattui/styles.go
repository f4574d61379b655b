package chattui

import "github.com/charmbracelet/lipgloss"

// Theme selects one of the built-in palettes.
type Theme string

const (
	ThemeDefault      Theme = "default"
	ThemeDark         Theme = "dark"
	ThemeHighContrast Theme = "high-contrast"
)

type palette struct {
	Header      lipgloss.Style
	HeaderMeta  lipgloss.Style
	DayDivider  lipgloss.Style
	Timestamp   lipgloss.Style
	SenderOut   lipgloss.Style
	SenderIn    lipgloss.Style
	Body        lipgloss.Style
	BodyPending lipgloss.Style
	BodyFailed  lipgloss.Style
	EditedTag   lipgloss.Style
	Footer      lipgloss.Style
	FooterAlert lipgloss.Style
	Selected    lipgloss.Style
}

func themePalette(theme Theme) palette {
	switch theme {
	case ThemeHighContrast:
		return palette{
			Header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
			HeaderMeta:  lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
			DayDivider:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
			Timestamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
			SenderOut:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
			SenderIn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
			Body:        lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
			BodyPending: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
			BodyFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
			EditedTag:   lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
			Footer:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
			FooterAlert: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
			Selected:    lipgloss.NewStyle().Reverse(true),
		}
	case ThemeDark:
		return palette{
			Header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
			HeaderMeta:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			DayDivider:  lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
			Timestamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
			SenderOut:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
			SenderIn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("180")),
			Body:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
			BodyPending: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			BodyFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("167")),
			EditedTag:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			Footer:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			FooterAlert: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("179")),
			Selected:    lipgloss.NewStyle().Reverse(true),
		}
	default:
		return palette{
			Header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
			HeaderMeta:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			DayDivider:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
			Timestamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
			SenderOut:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
			SenderIn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
			Body:        lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			BodyPending: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			BodyFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			EditedTag:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			Footer:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			FooterAlert: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
			Selected:    lipgloss.NewStyle().Reverse(true),
		}
	}
}

// ValidTheme reports whether name is a known theme.
func ValidTheme(name string) bool {
	switch Theme(name) {
	case ThemeDefault, ThemeDark, ThemeHighContrast:
		return true
	}
	return false
}
