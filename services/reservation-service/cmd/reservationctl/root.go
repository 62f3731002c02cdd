package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/config"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reservationctl",
		Short:         "Operate the reservation database: schema, service windows, closures and bookings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newWindowsCmd())
	root.AddCommand(newClosuresCmd())
	root.AddCommand(newBookingsCmd())
	return root
}

// env is what every subcommand needs: a pool and the restaurant's zone.
type env struct {
	pool *db.Pool
	loc  *time.Location
}

func openEnv(ctx context.Context) (*env, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	loc, err := config.Location("RESTAURANT_TIMEZONE", "Europe/Paris")
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, dbURL, 2)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &env{pool: pool, loc: loc}, nil
}

func (e *env) Close() { e.pool.Close() }

// withEnv adapts a RunE body that needs a database.
func withEnv(fn func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(ctx, e, cmd, args)
	}
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func (e *env) parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, e.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return t, nil
}
