package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/domain"
)

func (a *app) statsCmd() *cobra.Command {
	var (
		rangeFlag string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show streaks, completion rate, XP and per-routine stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rangeFlag == "" {
				rangeFlag = a.cfg.Stats.DefaultRange
			}
			period, err := engagement.ParsePeriod(rangeFlag)
			if err != nil {
				return err
			}

			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			today, err := d.Today(ctx)
			if err != nil {
				return err
			}
			dash, err := d.Stats.Dashboard(ctx, period, today)
			if err != nil {
				return err
			}
			per, err := d.Stats.RoutineStats(ctx, period, today)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Dashboard domain.GamificationStats `json:"dashboard"`
					Routines  []domain.RoutineStats    `json:"routines"`
				}{dash, per})
			}
			renderDashboard(out, dash)
			renderRoutineStats(out, per)
			return nil
		},
	}
	cmd.Flags().StringVarP(&rangeFlag, "range", "r", "", "Period: 7d, 30d, 1y, ytd, all or <N>d (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func renderDashboard(w io.Writer, s domain.GamificationStats) {
	lines := []string{
		heading(s.LevelIcon, fmt.Sprintf("Level %d · %s", s.Level, s.LevelName)),
		labelValue("XP", s.TotalXP),
	}
	if s.XPToNextLevel > 0 {
		lines = append(lines, labelValue("Next level", fmt.Sprintf("%s %d XP to go", progressBar(s.NextLevelProgress), s.XPToNextLevel)))
	} else {
		lines = append(lines, goldStyle.Render("Max level reached"))
	}

	streak := fmt.Sprintf("%d days (best %d)", s.CurrentStreak, s.BestStreak)
	if s.MultiplierLabel != "" {
		streak += " " + goldStyle.Render(fmt.Sprintf("x%.1f %s", s.StreakMultiplier, s.MultiplierLabel))
	}
	lines = append(lines,
		"",
		labelValue("Streak", streak),
		labelValue("Period", fmt.Sprintf("%s → %s (%s)", s.StartDate, s.EndDate, s.Period)),
		labelValue("Completed", fmt.Sprintf("%d/%d %s", s.CompletedCount, s.TotalTasks, progressBar(s.CompletionRate))),
		labelValue("Perfect days", fmt.Sprintf("%d (lifetime %d)", s.PerfectDays, s.TotalPerfectDays)),
		labelValue("By category", categoryCounts(s.CategoryCounts)),
		labelValue("Lifetime", fmt.Sprintf("%d completions", s.TotalCompletions)),
	)
	fmt.Fprintln(w, panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	for _, key := range s.NewlyUnlocked {
		fmt.Fprintf(w, "%s %s\n", goldStyle.Render("Unlocked"), key)
	}
}

func renderRoutineStats(w io.Writer, rs []domain.RoutineStats) {
	if len(rs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No active routines."))
		return
	}
	fmt.Fprintln(w, heading("", "Routines"))
	for _, r := range rs {
		fmt.Fprintf(w, "  %-20s %s  %d/%d  streak %d (best %d)\n",
			truncate(r.Name, 20), progressBar(r.CompletionRate),
			r.PeriodCompletions, r.TotalTasks, r.CurrentStreak, r.BestStreak)
	}
}

func categoryCounts(cc domain.CategoryCounts) string {
	parts := make([]string, 0, len(domain.AllCategories))
	for _, c := range domain.AllCategories {
		parts = append(parts, fmt.Sprintf("%s %d", c, cc.Get(c)))
	}
	return strings.Join(parts, " · ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
