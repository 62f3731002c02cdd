package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/handlers"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
	"github.com/spf13/cobra"
)

func newWindowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Manage recurring service windows",
	}
	cmd.AddCommand(newWindowsListCmd())
	cmd.AddCommand(newWindowsSetCmd())
	cmd.AddCommand(newWindowsDeactivateCmd())
	return cmd
}

func newWindowsListCmd() *cobra.Command {
	var all bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List service windows",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			windows, err := storage.NewScheduleRepository(e.pool).ListWindows(ctx, all)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDAY\tNAME\tOPEN\tCLOSE\tLAST\tCAPACITY\tINTERVAL\tMEAL\tACTIVE")
			for _, w := range windows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%t\n",
					w.ID, w.DayOfWeek, w.Name,
					model.FormatClock(w.StartMinute), model.FormatClock(w.EndMinute), model.FormatClock(w.LastBookingMinute),
					w.Capacity, w.SlotInterval, w.MealDuration, w.IsActive)
			}
			return tw.Flush()
		}),
	}
	c.Flags().BoolVar(&all, "all", false, "include inactive windows")
	return c
}

func newWindowsSetCmd() *cobra.Command {
	var (
		name, display, days   string
		openAt, closeAt, last string
		capacity, interval    int
		mealDuration          int
	)
	c := &cobra.Command{
		Use:   "set",
		Short: "Create or replace the active window for a service on one or more weekdays",
		Example: "  reservationctl windows set --name soir --display-name Dîner --days tue,wed,thu,fri,sat \\\n" +
			"    --open 19:00 --close 23:00 --last-booking 21:30 --capacity 40 --meal-duration 90",
		Args: cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			weekdays, err := parseWeekdays(days)
			if err != nil {
				return err
			}
			start, err := model.ParseClock(openAt)
			if err != nil {
				return fmt.Errorf("--open: %w", err)
			}
			end, err := model.ParseClock(closeAt)
			if err != nil {
				return fmt.Errorf("--close: %w", err)
			}
			lastMinute := model.DefaultLastBooking(start, end, interval)
			if last != "" {
				if lastMinute, err = model.ParseClock(last); err != nil {
					return fmt.Errorf("--last-booking: %w", err)
				}
			}
			if display == "" {
				display = name
			}

			repo := storage.NewScheduleRepository(e.pool)
			return e.pool.WithTx(ctx, func(ctx context.Context) error {
				for _, day := range weekdays {
					saved, err := repo.UpsertWindow(ctx, model.ServiceWindow{
						Name:              name,
						DisplayName:       display,
						DayOfWeek:         day,
						StartMinute:       start,
						EndMinute:         end,
						LastBookingMinute: lastMinute,
						Capacity:          capacity,
						SlotInterval:      interval,
						MealDuration:      mealDuration,
						IsActive:          true,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", day, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "saved %s %s id=%s\n", saved.Name, saved.DayOfWeek, saved.ID)
				}
				return nil
			})
		}),
	}
	c.Flags().StringVar(&name, "name", "", "service identifier, e.g. midi or soir")
	c.Flags().StringVar(&display, "display-name", "", "label shown to guests (defaults to --name)")
	c.Flags().StringVar(&days, "days", "", "comma-separated weekdays (mon..sun or 0-6, 0 = Sunday)")
	c.Flags().StringVar(&openAt, "open", "", "first slot HH:MM")
	c.Flags().StringVar(&closeAt, "close", "", "service end HH:MM")
	c.Flags().StringVar(&last, "last-booking", "", "last bookable start HH:MM (defaults to --close, or one interval earlier for a 24:00 close)")
	c.Flags().IntVar(&capacity, "capacity", 0, "maximum simultaneous covers")
	c.Flags().IntVar(&interval, "slot-interval", handlers.DefaultSlotInterval, "minutes between offered slots")
	c.Flags().IntVar(&mealDuration, "meal-duration", handlers.DefaultMealDuration, "minutes a booking holds its covers")
	for _, f := range []string{"name", "days", "open", "close", "capacity"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newWindowsDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <window-id>",
		Short: "Deactivate a service window",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			if err := storage.NewScheduleRepository(e.pool).DeactivateWindow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deactivated", args[0])
			return nil
		}),
	}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekdays(raw string) ([]time.Weekday, error) {
	var out []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		day, ok := weekdayNames[part[:min(3, len(part))]]
		if !ok {
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 || n > 6 {
				return nil, fmt.Errorf("invalid weekday %q", part)
			}
			day = time.Weekday(n)
		}
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one weekday required")
	}
	return out, nil
}
