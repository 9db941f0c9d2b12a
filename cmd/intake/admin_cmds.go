package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smhs/intake/internal/domain/admin"
	"github.com/smhs/intake/pkg/pagination"
)

func dashboardCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize every submission (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession("admin"); err != nil {
				return err
			}
			sum, err := a.admin.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(sum)
			}
			a.printf("Submissions: %d  pending: %d  processed: %d  safety flagged: %d\n",
				sum.Total, sum.Pending, sum.Processed, sum.SafetyFlagged)
			printSeries(a.out, "By status", sum.ByStatus)
			printSeries(a.out, "By severity", sum.BySeverity)
			printSeries(a.out, "By service category", sum.ByCategory)
			printSeries(a.out, "By school", sum.BySchool)
			printSeries(a.out, "By month", sum.ByMonth)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printSeries(w io.Writer, title string, series []admin.Count) {
	fmt.Fprintf(w, "\n%s\n", title)
	if len(series) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	top := 0
	for _, c := range series {
		if c.Count > top {
			top = c.Count
		}
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range series {
		bar := strings.Repeat("#", (c.Count*30+top-1)/top)
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", c.Label, c.Count, bar)
	}
	tw.Flush()
}

func submissionsCmd(a *app) *cobra.Command {
	var (
		status string
		page   pagination.Params
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List submissions (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession("admin"); err != nil {
				return err
			}
			page = page.Normalize()
			res, err := a.admin.List(cmd.Context(), status, page)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(pagination.NewResponse(res.Items, res.Total, page.Limit, page.Offset))
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSUBMITTED\tSTUDENT\tSCHOOL\tSEVERITY\tSAFETY")
			for _, s := range res.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", s.StudentUUID, s.Status,
					s.SubmittedDate.Format("2006-01-02"), s.StudentName, s.School, s.SeverityOfConcern, s.ImmediateSafetyConcern)
			}
			tw.Flush()
			a.printf("\nShowing %d of %d.", len(res.Items), res.Total)
			if page.HasNext(res.Total) {
				a.printf(" Next page: --offset %d", page.NextOffset())
			}
			a.printf("\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processed, ...)")
	cmd.Flags().IntVar(&page.Limit, "limit", pagination.DefaultLimit, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "items to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func processCmd(a *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "process <submission-id>",
		Short: "Mark a submission as processed (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession("admin"); err != nil {
				return err
			}
			rec, err := a.admin.Process(cmd.Context(), args[0], note)
			if err != nil {
				return err
			}
			a.printf("Submission %s is now %s.\n", rec.StudentUUID, rec.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "processing note")
	return cmd
}
