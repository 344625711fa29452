package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/logger"
)

func (a *app) doneCmd() *cobra.Command {
	var (
		cat  string
		date string
		undo bool
	)
	cmd := &cobra.Command{
		Use:   "done ROUTINE",
		Short: "Mark a routine slot as completed",
		Long: `Mark a routine as completed for one time category on a day (default today).
The category may be omitted when the routine is scheduled in exactly one.`,
		Example: `  minder done Stretch
  minder done Vitamins --cat PM
  minder done Vitamins --cat AM --date 2025-03-09 --undo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			r, err := d.Routines.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			category, err := pickCategory(r, cat)
			if err != nil {
				return err
			}
			today, err := d.Today(ctx)
			if err != nil {
				return err
			}
			if date == "" {
				date = today
			}

			c, err := d.Routines.SetCompletion(ctx, r.ID, date, category, !undo, today)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.Completed {
				fmt.Fprintf(out, "%s %s %s on %s\n", goodStyle.Render("✔"), r.Name, category, c.Date)
			} else {
				fmt.Fprintf(out, "%s %s %s on %s\n", mutedStyle.Render("✘"), r.Name, category, c.Date)
			}

			unlocked, err := d.Stats.Sync(ctx, today)
			if err != nil {
				logger.Warn("achievement sync failed", "err", err)
				return nil
			}
			for _, def := range unlocked {
				fmt.Fprintf(out, "%s %s %s: %s\n", goldStyle.Render("Unlocked"), def.Icon, def.Name, def.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cat, "cat", "c", "", "Time category (AM, NOON, PM, ALL)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&undo, "undo", false, "Clear the completion instead")
	return cmd
}

// pickCategory parses raw, or falls back to the routine's only category.
func pickCategory(r domain.Routine, raw string) (domain.TimeCategory, error) {
	if strings.TrimSpace(raw) != "" {
		return domain.ParseTimeCategory(raw)
	}
	if len(r.TimeCategories) == 1 {
		return r.TimeCategories[0], nil
	}
	return "", fmt.Errorf("%s is scheduled in %s: pick one with --cat", r.Name, categoryList(r.TimeCategories))
}
