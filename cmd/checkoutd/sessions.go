package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nikolayk812/checkoutflow/internal/config"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type sessionsFlags struct {
	databaseURL string
	owners      []string
	orders      []string
	stages      []string
	since       time.Duration
}

func sessionsCmd() *cobra.Command {
	var f sessionsFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted checkout sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := f.filter(time.Now())
			if err != nil {
				return err
			}

			if f.databaseURL == "" {
				return errors.New("database url is empty")
			}

			repo, closeRepo, err := sessionRepository(cmd.Context(), config.DatabaseConfig{URL: f.databaseURL})
			if err != nil {
				return err
			}
			defer closeRepo()

			return listSessions(cmd.Context(), repo, filter, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.databaseURL, "database-url", os.Getenv("CHECKOUT_DATABASE_URL"), "Postgres connection string")
	cmd.Flags().StringSliceVar(&f.owners, "owner", nil, "owner subject, repeatable")
	cmd.Flags().StringSliceVar(&f.orders, "order", nil, "order reference, repeatable")
	cmd.Flags().StringSliceVar(&f.stages, "stage", nil, "checkout stage, repeatable")
	cmd.Flags().DurationVar(&f.since, "since", 0, "only sessions updated within this duration")

	return cmd
}

func (f sessionsFlags) filter(now time.Time) (domain.SessionFilter, error) {
	filter := domain.SessionFilter{
		OwnerIDs:  f.owners,
		OrderRefs: f.orders,
		Stages: lo.Map(f.stages, func(s string, _ int) domain.CheckoutStage {
			return domain.CheckoutStage(s)
		}),
	}

	if f.since > 0 {
		after := now.Add(-f.since)
		filter.UpdatedAt = &domain.TimeRange{After: &after}
	}

	if err := filter.Validate(); err != nil {
		return domain.SessionFilter{}, fmt.Errorf("filter.Validate: %w", err)
	}

	return filter, nil
}

func listSessions(ctx context.Context, repo port.SessionRepository, filter domain.SessionFilter, out io.Writer) error {
	records, err := repo.SearchSessions(ctx, filter)
	if err != nil {
		return fmt.Errorf("repo.SearchSessions: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORDER\tOWNER\tSTAGE\tVERSION\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.OrderRef, lo.CoalesceOrEmpty(r.OwnerID, "-"), r.Stage, r.Version, r.UpdatedAt.Format(time.RFC3339))
	}

	return tw.Flush()
}
