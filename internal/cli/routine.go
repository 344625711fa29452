package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/routine-minder/minder/internal/app/routine"
	"github.com/routine-minder/minder/internal/domain"
)

func (a *app) routineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "routine",
		Aliases: []string{"routines", "r"},
		Short:   "Manage routines",
	}
	cmd.AddCommand(
		a.routineAddCmd(),
		a.routineListCmd(),
		a.routineEditCmd(),
		a.routineActiveCmd("pause", "Stop tracking a routine without losing its history", false),
		a.routineActiveCmd("resume", "Resume tracking a paused routine", true),
		a.routineRmCmd(),
	)
	return cmd
}

func (a *app) routineAddCmd() *cobra.Command {
	var (
		cats   []string
		notify string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a routine",
		Example: `  minder routine add "Stretch" --cat AM
  minder routine add "Vitamins" --cat AM,PM --notify 08:30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := parseCategories(cats)
			if err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			r, err := d.Routines.Create(cmd.Context(), routine.Draft{
				Name:                args[0],
				TimeCategories:      categories,
				NotificationEnabled: notify != "",
				NotificationTime:    notify,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", r.Name, categoryList(r.TimeCategories))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&cats, "cat", "c", []string{string(domain.CategoryAM)}, "Time categories (AM, NOON, PM, ALL)")
	cmd.Flags().StringVar(&notify, "notify", "", "Reminder time HH:MM")
	return cmd
}

func (a *app) routineListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List routines in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			routines, err := d.Routines.List(cmd.Context(), all)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(routines) == 0 {
				fmt.Fprintln(out, "No routines yet. Run 'minder routine add <name>' to get started.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORIES\tSTATUS\tREMINDER\tID")
			for _, r := range routines {
				status := "active"
				if !r.IsActive {
					status = "paused"
				}
				reminder := "-"
				if r.NotificationEnabled && r.NotificationTime != "" {
					reminder = r.NotificationTime
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Name, categoryList(r.TimeCategories), status, reminder, r.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include paused routines")
	return cmd
}

func (a *app) routineEditCmd() *cobra.Command {
	var (
		name   string
		cats   []string
		notify string
		order  int
	)
	cmd := &cobra.Command{
		Use:   "edit ROUTINE",
		Short: "Change a routine's name, categories, reminder or position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p routine.Patch
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = &name
			}
			if flags.Changed("cat") {
				categories, err := parseCategories(cats)
				if err != nil {
					return err
				}
				if len(categories) == 0 {
					return domain.ErrNoTimeCategories
				}
				p.TimeCategories = categories
			}
			if flags.Changed("notify") {
				enabled := notify != ""
				p.NotificationEnabled = &enabled
				p.NotificationTime = &notify
			}
			if flags.Changed("order") {
				p.SortOrder = &order
			}

			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			r, err := d.Routines.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r, err = d.Routines.Update(cmd.Context(), r.ID, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", r.Name, categoryList(r.TimeCategories))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringSliceVarP(&cats, "cat", "c", nil, "New time categories")
	cmd.Flags().StringVar(&notify, "notify", "", "Reminder time HH:MM (empty turns it off)")
	cmd.Flags().IntVar(&order, "order", 0, "Sort position")
	return cmd
}

func (a *app) routineActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ROUTINE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			r, err := d.Routines.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := d.Routines.SetActive(cmd.Context(), r.ID, active); err != nil {
				return err
			}
			verb := "Paused"
			if active {
				verb = "Resumed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, r.Name)
			return nil
		},
	}
}

func (a *app) routineRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ROUTINE",
		Short: "Delete a routine and all of its completions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			r, err := d.Routines.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := d.Routines.Delete(cmd.Context(), r.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", r.Name)
			return nil
		},
	}
}
