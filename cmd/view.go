package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Inspect stored batches",
	Long:  "Commands for listing entries, leads, and edge cases.",
}

// -- view entries --

var viewEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fileID, _ := cmd.Flags().GetString("file-id")
		status, _ := cmd.Flags().GetString("status")
		if status != "" && status != string(model.EntryStatusPending) && !model.ValidEntryStatus(model.EntryStatus(status)) {
			return eris.Errorf("invalid status %q", status)
		}

		entries, err := st.ListEntries(ctx, store.EntryFilter{
			FileID: fileID,
			Status: model.EntryStatus(status),
		})
		if err != nil {
			return eris.Wrap(err, "view entries")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No entries found.")
			return nil
		}

		formatEntries(os.Stdout, entries)
		return nil
	},
}

// -- view leads --

var viewLeadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List qualified leads with their source inquiries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fileID, _ := cmd.Flags().GetString("file-id")
		leads, err := st.ListLeadsWithEntries(ctx, fileID)
		if err != nil {
			return eris.Wrap(err, "view leads")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeads(os.Stdout, leads)
		return nil
	},
}

// -- view edge-cases --

var viewEdgeCasesCmd = &cobra.Command{
	Use:   "edge-cases",
	Short: "List entries flagged as edge cases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fileID, _ := cmd.Flags().GetString("file-id")
		cases, err := st.ListEdgeCases(ctx, fileID)
		if err != nil {
			return eris.Wrap(err, "view edge-cases")
		}

		if len(cases) == 0 {
			fmt.Fprintln(os.Stderr, "No edge cases found.")
			return nil
		}

		formatEdgeCases(os.Stdout, cases)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{viewEntriesCmd, viewLeadsCmd, viewEdgeCasesCmd} {
		c.Flags().String("file-id", "", "filter by batch file ID")
	}
	viewEntriesCmd.Flags().String("status", "", "filter by entry status (pending, success, fail, edge_case)")

	viewCmd.AddCommand(viewEntriesCmd)
	viewCmd.AddCommand(viewLeadsCmd)
	viewCmd.AddCommand(viewEdgeCasesCmd)
	rootCmd.AddCommand(viewCmd)
}

func formatEntries(out io.Writer, entries []model.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE_ID\tSTATUS\tINQUIRY")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(e.ID), e.FileID, e.Status, truncateText(e.RawInput, 250))
	}
	_ = w.Flush()
}

func formatLeads(out io.Writer, leads []model.LeadWithEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE_ID\tCOMPANY\tPRIORITY\tAUDIT\tSCORE\tINQUIRY")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t--------\t-----\t-----\t-------")
	for _, l := range leads {
		score := ""
		if l.AuditScore != nil {
			score = fmt.Sprintf("%.0f", *l.AuditScore)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(l.ID),
			l.FileID,
			derefString(l.CompanyName),
			derefPriority(l.Priority),
			derefPriority(l.AuditPriority),
			score,
			truncateText(l.RawInput, 250),
		)
	}
	_ = w.Flush()
}

func formatEdgeCases(out io.Writer, cases []model.EdgeCase) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE_ID\tREASON\tINQUIRY")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------")
	for _, ec := range cases {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(ec.ID), ec.FileID, truncateText(ec.Reason, 80), truncateText(ec.RawInput, 250))
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateText(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefPriority(p *model.Priority) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
