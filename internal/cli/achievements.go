package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/domain"
)

func (a *app) achievementsCmd() *cobra.Command {
	var levels bool
	cmd := &cobra.Command{
		Use:     "achievements",
		Aliases: []string{"ach"},
		Short:   "Show achievements and how close each one is",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if levels {
				renderLevels(out, engagement.Levels())
				return nil
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
			board, err := d.Stats.Achievements(ctx, today)
			if err != nil {
				return err
			}
			renderAchievements(out, board)
			return nil
		},
	}
	cmd.Flags().BoolVar(&levels, "levels", false, "List the level ladder instead")
	return cmd
}

func renderAchievements(w io.Writer, board []domain.AchievementProgress) {
	unlocked := 0
	for _, p := range board {
		if p.Unlocked {
			unlocked++
		}
	}
	fmt.Fprintln(w, heading("🏆", fmt.Sprintf("Achievements %d/%d", unlocked, len(board))))

	for _, p := range board {
		if p.Unlocked {
			when := ""
			if p.UnlockedAt != nil {
				when = mutedStyle.Render(p.UnlockedAt.Local().Format("2006-01-02"))
			}
			fmt.Fprintf(w, "  %s %-22s %s %s\n", p.Icon, goldStyle.Render(p.Name), goodStyle.Render("unlocked"), when)
			continue
		}
		fmt.Fprintf(w, "  %s %-22s %s %s\n", p.Icon, p.Name, progressBar(p.Progress),
			mutedStyle.Render(fmt.Sprintf("%d/%d", p.Current, p.Requirement)))
	}
}

func renderLevels(w io.Writer, ladder []domain.Level) {
	fmt.Fprintln(w, heading("", "Levels"))
	for _, l := range ladder {
		fmt.Fprintf(w, "  %2d %s %-14s %s\n", l.Level, l.Icon, l.Name, mutedStyle.Render(fmt.Sprintf("%d XP", l.Threshold)))
	}
}
