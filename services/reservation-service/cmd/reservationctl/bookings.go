package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
	"github.com/spf13/cobra"
)

func newBookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Inspect bookings and record what happened to them",
	}
	cmd.AddCommand(newBookingsListCmd())
	cmd.AddCommand(newBookingsStatusCmd())
	return cmd
}

func newBookingsListCmd() *cobra.Command {
	var date string
	c := &cobra.Command{
		Use:   "list",
		Short: "List the bookings of one day",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			day := model.At(time.Now().In(e.loc), 0)
			if date != "" {
				var err error
				if day, err = e.parseDate(date); err != nil {
					return err
				}
			}
			list, err := storage.NewBookingRepository(e.pool, e.loc).ListBetween(ctx, day, day.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TIME\tSERVICE\tCODE\tPARTY\tNAME\tPHONE\tSTATUS\tID")
			covers := 0
			for _, b := range list {
				if b.Status == model.StatusConfirmed {
					covers += b.PartySize
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					b.StartAt.In(e.loc).Format("15:04"), b.ServiceName, b.ConfirmationCode, b.PartySize,
					b.Name, b.Phone, b.Status, b.ID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d bookings, %d confirmed covers on %s\n", len(list), covers, day.Format(model.DateLayout))
			return nil
		}),
	}
	c.Flags().StringVar(&date, "date", "", "day YYYY-MM-DD (default today)")
	return c
}

func newBookingsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <booking-id> <cancelled|completed|no_show>",
		Short: "Move a confirmed booking to a final status",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			next := model.BookingStatus(args[1])
			if !next.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			b, err := storage.NewBookingRepository(e.pool, e.loc).UpdateStatus(ctx, args[0], next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", b.ConfirmationCode, b.ID, b.Status)
			return nil
		}),
	}
}
