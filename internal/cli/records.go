package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"biztrack/internal/aggregate"
	"biztrack/internal/core"
	"biztrack/internal/grouping"
	"biztrack/internal/report"
	"biztrack/internal/report/memory"
	"biztrack/internal/report/sheets"
)

type fetchFunc[R any] func(context.Context, grouping.Filter) (*aggregate.Feed[R], error)

// feedSource picks the one-shot and the superseding fetch for an entity.
type feedSource[R any] func(c *aggregate.Coordinator) (fetch, latest fetchFunc[R])

func receiptsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "receipts",
		Aliases: []string{"receipt"},
		Short:   "List, total, export and save receipts",
	}
	cmd.AddCommand(
		listCmd(s, "receipts", "category", func(c *aggregate.Coordinator) (fetchFunc[aggregate.ReceiptRow], fetchFunc[aggregate.ReceiptRow]) {
			return c.FetchReceipts, c.LatestReceipts
		}, receiptColumns),
		receiptsTotalCmd(s),
		receiptsPDFCmd(s),
		receiptsExportCmd(s),
		receiptSaveCmd(s),
	)
	return cmd
}

func jobsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "List and save jobs",
	}
	cmd.AddCommand(
		listCmd(s, "jobs", "project", func(c *aggregate.Coordinator) (fetchFunc[aggregate.JobRow], fetchFunc[aggregate.JobRow]) {
			return c.FetchJobs, c.LatestJobs
		}, jobColumns),
		jobSaveCmd(s),
	)
	return cmd
}

func tripLogsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "triplogs",
		Aliases: []string{"triplog", "trips"},
		Short:   "List and save trip logs",
	}
	cmd.AddCommand(
		listCmd(s, "trip logs", "vehicle", func(c *aggregate.Coordinator) (fetchFunc[aggregate.TripLogRow], fetchFunc[aggregate.TripLogRow]) {
			return c.FetchTripLogs, c.LatestTripLogs
		}, tripLogColumns),
		tripLogSaveCmd(s),
	)
	return cmd
}

func listCmd[R any](s *state, noun, dimension string, source feedSource[R], cols []column[R]) *cobra.Command {
	var group string
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + noun + " grouped by day, month, year, " + dimension + " or client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := grouping.ParseFilterName(group)
			if err != nil {
				return usageErrorf("%v", err)
			}
			if every < 0 {
				return usageErrorf("--every must not be negative")
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			fetch, latest := source(app.Coordinator)
			if every == 0 {
				feed, err := fetch(cmd.Context(), f)
				if err != nil {
					return err
				}
				return renderFeed(cmd.OutOrStdout(), cmd.ErrOrStderr(), s.output, feed, cols)
			}
			return refreshLoop(cmd, s.output, every, func(ctx context.Context) (*aggregate.Feed[R], error) {
				return latest(ctx, f)
			}, cols)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "day", "Grouping: day, month, year, "+dimension+" or client")
	cmd.Flags().DurationVar(&every, "every", 0, "Refresh the listing at this interval until interrupted")
	return cmd
}

// refreshLoop re-renders the feed on every tick. A refresh that is still
// running when the next one starts is superseded and never printed.
func refreshLoop[R any](cmd *cobra.Command, output string, every time.Duration, latest func(context.Context) (*aggregate.Feed[R], error), cols []column[R]) error {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed, err := latest(ctx)
			if errors.Is(err, aggregate.ErrStale) || ctx.Err() != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fmt.Fprintf(stderr, "refresh failed: %s\n", describe(err))
				return
			}
			fmt.Fprintf(stdout, "== %s ==\n", time.Now().Format(time.DateTime))
			if err := renderFeed(stdout, stderr, output, feed, cols); err != nil {
				fmt.Fprintf(stderr, "render failed: %v\n", err)
			}
		}()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	refresh()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			refresh()
		}
	}
}

func receiptsTotalCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Show the server-side total of all receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			total, err := app.Backend.Receipts.Total(ctx, sess.UserID, sess.Token)
			if err != nil {
				return err
			}
			if s.output == OutputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"total": core.FormatMoney(total)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %s\n", core.FormatMoney(total))
			return nil
		},
	}
}

func receiptsPDFCmd(s *state) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Download the receipts-by-category PDF report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			data, err := app.Backend.Receipts.CategoryPDF(ctx, sess.UserID, sess.Token)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "receipts-by-category.pdf", "Output file")
	return cmd
}

func receiptsExportCmd(s *state) *cobra.Command {
	var sheet, group string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write grouped receipts to a Google Sheets tab",
		Long: `export fetches the grouped receipts and writes them, one row per receipt
plus a total row, into the tab named by --sheet of the spreadsheet set by
GOOGLE_SPREADSHEET_ID. With --dry-run the rows are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := grouping.ParseFilterName(group)
			if err != nil {
				return usageErrorf("%v", err)
			}
			if sheet, err = report.ValidateTitle(sheet); err != nil {
				return usageErrorf("--sheet: %v", err)
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var w report.Writer
			var preview *memory.Writer
			if dryRun {
				preview = memory.New()
				w = preview
			} else {
				if app.Config.GoogleSpreadsheetID == "" {
					return usageErrorf("GOOGLE_SPREADSHEET_ID is not set")
				}
				if w, err = sheets.NewFromEnv(ctx, app.Config.GoogleSpreadsheetID, app.Logger); err != nil {
					return err
				}
			}

			feed, err := app.Coordinator.FetchReceipts(ctx, f)
			if err != nil {
				return err
			}
			ref, err := w.WriteReceipts(ctx, sheet, feed)
			if err != nil {
				return err
			}

			if preview != nil {
				rows, _ := preview.Table(sheet)
				if s.output == OutputJSON {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				tw := newTable(cmd.OutOrStdout())
				for _, r := range rows {
					for i, c := range r {
						if i > 0 {
							fmt.Fprint(tw, "\t")
						}
						fmt.Fprint(tw, c)
					}
					fmt.Fprintln(tw)
				}
				return tw.Flush()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d receipts to %s\n", len(feed.Rows), ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet tab to write (created when missing)")
	cmd.Flags().StringVarP(&group, "group", "g", "month", "Grouping: day, month, year, category or client")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the rows instead of writing them")
	return cmd
}

func receiptSaveCmd(s *state) *cobra.Command {
	var id, date, category, client, amount, tax, tip, payment, description, status string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a receipt, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var rec core.Receipt
			if id != "" {
				sess, err := app.Sessions.Current(ctx)
				if err != nil {
					return err
				}
				if rec, err = app.Backend.Receipts.Find(ctx, sess.UserID, sess.Token, id); err != nil {
					return err
				}
				rec.ID = id
			}

			e := newEdits(cmd)
			e.date("date", &rec.Date, date)
			e.defaultDate(&rec.Date)
			e.str("category", &rec.Category, category)
			e.str("client", &rec.ClientID, client)
			e.money("amount", &rec.InitialTotal, amount)
			e.money("tax", &rec.Tax, tax)
			e.money("tip", &rec.Tip, tip)
			e.str("payment", &rec.PaymentMode, payment)
			e.str("description", &rec.Description, description)
			e.optional("status", &rec.Status, status)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveReceipt(ctx, rec)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "receipt", saved.ID, saved, fmt.Sprintf("total %s", core.FormatMoney(saved.Total())))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Receipt to update")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, RFC 3339 or now)")
	cmd.Flags().StringVar(&category, "category", "", "Category id")
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&amount, "amount", "", "Initial total before tax and tip")
	cmd.Flags().StringVar(&tax, "tax", "", "Tax")
	cmd.Flags().StringVar(&tip, "tip", "", "Tip")
	cmd.Flags().StringVar(&payment, "payment", "", "Payment mode")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&status, "status", "", "Status")
	return cmd
}

func jobSaveCmd(s *state) *cobra.Command {
	var id, start, end, rate, income, project, client, task, notes string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a job, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var job core.Job
			if id != "" {
				sess, err := app.Sessions.Current(ctx)
				if err != nil {
					return err
				}
				if job, err = app.Backend.Jobs.Find(ctx, sess.UserID, sess.Token, id); err != nil {
					return err
				}
				job.ID = id
			}

			e := newEdits(cmd)
			e.date("start", &job.Start, start)
			e.defaultDate(&job.Start)
			e.date("end", &job.End, end)
			e.money("rate", &job.Rate, rate)
			e.money("income", &job.Income, income)
			e.str("project", &job.Project, project)
			e.str("client", &job.ClientID, client)
			e.str("task", &job.TaskID, task)
			e.str("notes", &job.Notes, notes)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveJob(ctx, job)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "job", saved.ID, saved, fmt.Sprintf("%s hours", saved.Duration().StringFixed(2)))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Job to update")
	cmd.Flags().StringVar(&start, "start", "", "Start time (YYYY-MM-DD, RFC 3339 or now)")
	cmd.Flags().StringVar(&end, "end", "", "End time (YYYY-MM-DD, RFC 3339 or now)")
	cmd.Flags().StringVar(&rate, "rate", "", "Hourly rate")
	cmd.Flags().StringVar(&income, "income", "", "Income")
	cmd.Flags().StringVar(&project, "project", "", "Project")
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&task, "task", "", "Task id")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes")
	return cmd
}

func tripLogSaveCmd(s *state) *cobra.Command {
	var id, date, vehicle, client, start, end, expense, rate, total, origin, destination, notes string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a trip log, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var trip core.TripLog
			if id != "" {
				sess, err := app.Sessions.Current(ctx)
				if err != nil {
					return err
				}
				if trip, err = app.Backend.TripLogs.Find(ctx, sess.UserID, sess.Token, id); err != nil {
					return err
				}
				trip.ID = id
			}

			e := newEdits(cmd)
			e.date("date", &trip.Date, date)
			e.defaultDate(&trip.Date)
			e.str("vehicle", &trip.Vehicle, vehicle)
			e.str("client", &trip.ClientID, client)
			e.money("start", &trip.Start, start)
			e.money("end", &trip.End, end)
			e.money("expense", &trip.Expense, expense)
			e.money("rate", &trip.Rate, rate)
			e.money("total", &trip.Total, total)
			e.str("origin", &trip.Origin, origin)
			e.str("destination", &trip.Destination, destination)
			e.str("notes", &trip.Notes, notes)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveTripLog(ctx, trip)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "trip log", saved.ID, saved, fmt.Sprintf("%s distance", saved.Distance().String()))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Trip log to update")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, RFC 3339 or now)")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "Vehicle id")
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&start, "start", "", "Odometer at start")
	cmd.Flags().StringVar(&end, "end", "", "Odometer at end")
	cmd.Flags().StringVar(&expense, "expense", "", "Expense")
	cmd.Flags().StringVar(&rate, "rate", "", "Rate per distance unit")
	cmd.Flags().StringVar(&total, "total", "", "Total")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin")
	cmd.Flags().StringVar(&destination, "destination", "", "Destination")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes")
	return cmd
}

func printSaved(cmd *cobra.Command, output, noun, id string, rec any, detail string) error {
	if output == OutputJSON {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	if detail != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s %s (%s)\n", noun, id, detail)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s %s\n", noun, id)
	return nil
}
