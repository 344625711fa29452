package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/routine-minder/minder/internal/domain"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cMuted   = lipgloss.Color("244") // gray
	cGold    = lipgloss.Color("220") // gold
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	goodStyle  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	warnStyle  = lipgloss.NewStyle().Foreground(cWarn)
	mutedStyle = lipgloss.NewStyle().Foreground(cMuted)
	goldStyle  = lipgloss.NewStyle().Bold(true).Foreground(cGold)
	panelStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func heading(icon, title string) string {
	if icon = strings.TrimSpace(icon); icon != "" {
		icon += " "
	}
	return titleStyle.Render(icon + title)
}

func labelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", keyStyle.Render(label+":"), value)
}

// ─── Progress Bar ───────────────────────────────────────────────────────────
// [████████████░░░░░░░░] 60%

const barWidth = 20

// progressBar renders pct (0-100) as a fixed-width bar.
func progressBar(pct int) string {
	pct = max(0, min(100, pct))
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	style := warnStyle
	if pct == 100 {
		style = goodStyle
	}
	return fmt.Sprintf("[%s] %3d%%", style.Render(bar), pct)
}

func categoryList(cs []domain.TimeCategory) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func parseCategories(raw []string) ([]domain.TimeCategory, error) {
	var out []domain.TimeCategory
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, err := domain.ParseTimeCategory(part)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}
