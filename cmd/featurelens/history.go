package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/featurelens/internal/adapter/postgres"
	"github.com/heartmarshall/featurelens/internal/adapter/postgres/lookuplog"
	"github.com/heartmarshall/featurelens/internal/domain"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		filter  lookuplog.Filter
		outcome string
		since   time.Duration
		stats   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent lookups from the lookup log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, err := root.loadDatabase()
			if err != nil {
				return err
			}
			pool, err := postgres.NewPool(ctx, db)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := lookuplog.New(pool)
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			out := cmd.OutOrStdout()
			if stats {
				counts, err := repo.CountByOutcome(ctx, from)
				if err != nil {
					return err
				}
				return printOutcomeCounts(out, counts)
			}

			filter.Outcome = domain.LookupOutcome(outcome)
			filter.Since = from
			records, err := repo.List(ctx, filter)
			if err != nil {
				return err
			}
			return printRecords(out, records)
		},
	}
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of lookups to list")
	cmd.Flags().StringVar(&filter.Token, "token", "", "only lookups of this token")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only lookups with this outcome (ok, network_error, auth_error, service_error, canceled, other)")
	cmd.Flags().DurationVar(&since, "since", 0, "only lookups newer than this, e.g. 24h")
	cmd.Flags().BoolVar(&stats, "stats", false, "print counts per outcome instead of lookups")
	return cmd
}

func printRecords(w io.Writer, records []domain.LookupRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "no lookups recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOKEN\tOUTCOME\tRESULTS\tSTATUS\tATTEMPTS\tDURATION")
	for _, r := range records {
		status := "-"
		if r.StatusCode != nil {
			status = strconv.Itoa(*r.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Token, r.Outcome,
			r.ResultCount, status, r.Attempts, r.Duration)
	}
	return tw.Flush()
}

func printOutcomeCounts(w io.Writer, counts map[domain.LookupOutcome]int) error {
	outcomes := make([]domain.LookupOutcome, 0, len(counts))
	total := 0
	for o, n := range counts {
		outcomes = append(outcomes, o)
		total += n
	}
	slices.Sort(outcomes)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\n", o, counts[o])
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}
