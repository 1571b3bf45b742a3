package tui

import "github.com/charmbracelet/lipgloss"

// StyleConfig holds the colors of the progress view.
type StyleConfig struct {
	PrimaryBlue   lipgloss.Color
	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	BorderColor   lipgloss.Color
	Spinner       lipgloss.Color
	Success       lipgloss.Color
	Warning       lipgloss.Color
	Failure       lipgloss.Color

	// TitleGradient colors the title from left to right.
	TitleGradient []lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:   lipgloss.Color("#8AB4F8"),
		TextPrimary:   lipgloss.Color("#E8EAED"),
		TextSecondary: lipgloss.Color("#9AA0A6"),
		BorderColor:   lipgloss.Color("#5F6368"),
		Spinner:       lipgloss.Color("#FFD700"),
		Success:       lipgloss.Color("#34A853"),
		Warning:       lipgloss.Color("#FBBC04"),
		Failure:       lipgloss.Color("#EA4335"),
		TitleGradient: []lipgloss.Color{
			lipgloss.Color("#5DADE2"),
			lipgloss.Color("#3498DB"),
			lipgloss.Color("#2E86C1"),
			lipgloss.Color("#2874A6"),
			lipgloss.Color("#21618C"),
		},
	}
}

func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true)
}

func (s *StyleConfig) LabelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.TextSecondary)
}

func (s *StyleConfig) ValueStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.TextPrimary).Bold(true)
}

// PanelStyle frames the counters.
func (s *StyleConfig) PanelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.BorderColor)
}

// Gradient renders text one rune at a time across TitleGradient.
func (s *StyleConfig) Gradient(text string) string {
	runes := []rune(text)
	if len(runes) == 0 || len(s.TitleGradient) == 0 {
		return text
	}
	var out string
	for i, r := range runes {
		color := s.TitleGradient[i*len(s.TitleGradient)/len(runes)]
		out += lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(r))
	}
	return out
}
