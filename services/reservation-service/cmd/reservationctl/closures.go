package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
	"github.com/spf13/cobra"
)

func newClosuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closures",
		Short: "Manage exceptional closing days",
	}
	cmd.AddCommand(newClosuresListCmd())
	cmd.AddCommand(newClosuresAddCmd())
	cmd.AddCommand(newClosuresRemoveCmd())
	return cmd
}

func newClosuresListCmd() *cobra.Command {
	var from, to string
	c := &cobra.Command{
		Use:   "list",
		Short: "List closures in a date range",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			start := model.At(time.Now().In(e.loc), 0)
			if from != "" {
				var err error
				if start, err = e.parseDate(from); err != nil {
					return err
				}
			}
			end := start.AddDate(0, 0, 90)
			if to != "" {
				var err error
				if end, err = e.parseDate(to); err != nil {
					return err
				}
			}
			closures, err := storage.NewScheduleRepository(e.pool).ListClosures(ctx, start, end)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "DATE\tREASON")
			for _, cl := range closures {
				fmt.Fprintf(tw, "%s\t%s\n", cl.Date.Format(model.DateLayout), cl.Reason)
			}
			return tw.Flush()
		}),
	}
	c.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD (default today)")
	c.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD (default from + 90 days)")
	return c
}

func newClosuresAddCmd() *cobra.Command {
	var reason string
	c := &cobra.Command{
		Use:   "add <YYYY-MM-DD>",
		Short: "Close the restaurant for a whole day",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			date, err := e.parseDate(args[0])
			if err != nil {
				return err
			}
			cl, err := storage.NewScheduleRepository(e.pool).AddClosure(ctx, date, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s %s\n", cl.Date.Format(model.DateLayout), cl.Reason)
			return nil
		}),
	}
	c.Flags().StringVar(&reason, "reason", "", "shown to guests as \"closed: <reason>\"")
	return c
}

func newClosuresRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <YYYY-MM-DD>",
		Short: "Reopen a closed day",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			date, err := e.parseDate(args[0])
			if err != nil {
				return err
			}
			if err := storage.NewScheduleRepository(e.pool).RemoveClosure(ctx, date); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reopened", args[0])
			return nil
		}),
	}
}
