package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/triage-cli/internal/pipeline"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export <file-id>",
	Short: "Regenerate export artifacts for a processed batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fileID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		leads, err := st.ListLeads(ctx, fileID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}
		if len(leads) == 0 {
			return eris.Errorf("no leads found for batch %q", fileID)
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}

		artifacts, err := pipeline.ExportLeads(leads, fileID, dir)
		if err != nil {
			return eris.Wrap(err, "export leads")
		}

		fmt.Printf("Wrote %s and %s (%d leads).\n", artifacts.JSONPath, artifacts.CSVPath, len(leads))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
