package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/ingest"
	"github.com/sells-group/triage-cli/internal/pipeline"
)

var processResume bool

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run the triage pipeline on an inquiry file",
	Long:  `Reads a .json (array of {"text": ...} objects) or .txt (one inquiry per line) file, runs all triage stages, and writes export artifacts. The batch ID is the filename stem.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fileID, records, err := ingest.ReadFile(args[0], cfg.Pipeline.EntryTextMaxSize)
		if err != nil {
			return err
		}

		zap.L().Info("processing batch",
			zap.String("file_id", fileID),
			zap.Int("records", len(records)),
			zap.Bool("resume", processResume),
		)

		exists, err := env.Store.HasBatch(ctx, fileID)
		if err != nil {
			return eris.Wrap(err, "check batch")
		}

		var result *pipeline.Result
		if exists && processResume {
			// A duplicate batch with --resume continues at the first
			// incomplete stage instead of failing.
			result, err = env.Pipeline.Resume(ctx, fileID)
		} else {
			result, err = env.Pipeline.Run(ctx, fileID, records)
		}
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <file-id>",
	Short: "Resume a partially processed batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Resume(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pipeline resume")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processResume, "resume", false, "resume the batch if it already exists")
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(resumeCmd)
}
