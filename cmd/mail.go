package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxindex/internal/mailindex"
)

func newBackfillCmd() *cobra.Command {
	var (
		lookbackDays     int
		windowDays       int
		perWindowLimit   int
		includeSpamTrash bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Index message ids for the lookback period",
		Long: `Walk the lookback period in fixed windows, list the message ids of each
window and record id, thread, internal date and day in the message index.
Running it again is safe: rows are upserted by message id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mailindex.IndexOptions{
				Lookback:         days(lookbackDays),
				WindowWidth:      days(windowDays),
				PerWindowLimit:   perWindowLimit,
				IncludeSpamTrash: includeSpamTrash,
			}
			return withApp(cmd, func(a *app) error {
				stats, err := a.mail.Backfill(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}

	cmd.Flags().IntVar(&lookbackDays, "lookback-days", int(mailindex.DefaultLookback/(24*time.Hour)), "How many days back to index")
	cmd.Flags().IntVar(&windowDays, "window-days", int(mailindex.DefaultWindowWidth/(24*time.Hour)), "Width of one listing window in days")
	cmd.Flags().IntVar(&perWindowLimit, "per-window-limit", 0, "Maximum ids listed per window (0: unlimited)")
	cmd.Flags().BoolVar(&includeSpamTrash, "include-spam-trash", false, "Also index spam and trash")
	return cmd
}

func newHydrateCmd() *cobra.Command {
	var (
		day, from, to string
		bodies        bool
	)

	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Fetch and store the indexed messages of a day",
		Long: `Fetch the messages recorded in the index for one day (--day) or an
inclusive range of days (--from, --to) and store their headers, snippet and
decoded body. With --bodies=false only metadata is fetched and the raw
provider payload is stored instead of the body.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if day == "" && (from == "" || to == "") {
				return errors.New("either --day or both --from and --to are required")
			}
			opts := mailindex.HydrateOptions{FetchBodies: bodies}
			return withApp(cmd, func(a *app) error {
				var (
					n   int
					err error
				)
				if day != "" {
					n, err = a.mail.HydrateDay(cmd.Context(), day, opts)
				} else {
					n, err = a.mail.HydrateRange(cmd.Context(), from, to, opts)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"day": day, "from": from, "to": to, "messages": n,
				})
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day to hydrate (YYYY-MM-DD, UTC)")
	cmd.Flags().StringVar(&from, "from", "", "First day of a range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day of a range, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&bodies, "bodies", true, "Fetch full messages and extract bodies")
	cmd.MarkFlagsMutuallyExclusive("day", "from")
	cmd.MarkFlagsMutuallyExclusive("day", "to")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit int
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Search the mailbox and print decoded results",
		Long: `Search the mailbox. TERM is wrapped as "TERM in:all newer_than:90d"
unless --raw is given, in which case it is passed to Gmail unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if !raw {
				query = mailindex.DefaultQuery(query)
			}
			return withApp(cmd, func(a *app) error {
				results, estimate, err := a.mail.Search(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"query": query, "estimate": estimate, "results": results,
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&raw, "raw", false, "Pass TERM to Gmail as-is")
	return cmd
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
