package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"go.uber.org/zap"
)

var purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge <file-id>",
	Short: "Delete all records for a batch",
	Long:  "Removes the batch's entries, leads, edge cases, and stage markers, allowing the same file to be reprocessed.",
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

		exists, err := st.HasBatch(ctx, fileID)
		if err != nil {
			return eris.Wrap(err, "check batch")
		}
		if !exists {
			return eris.Errorf("batch %q not found", fileID)
		}

		if !purgeForce {
			fmt.Fprintf(os.Stderr, "This deletes all records for batch %q. Rerun with --force to confirm.\n", fileID)
			return nil
		}

		if err := st.PurgeBatch(ctx, fileID); err != nil {
			return eris.Wrap(err, "purge batch")
		}

		zap.L().Info("batch purged", zap.String("file_id", fileID))
		fmt.Printf("Purged batch %q.\n", fileID)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "skip confirmation")
	rootCmd.AddCommand(purgeCmd)
}
