package model

import "time"

// Stage names a pipeline stage. Stages run strictly in the order listed.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageFlag       Stage = "flag"
	StageQualify    Stage = "qualify"
	StagePrioritize Stage = "prioritize"
	StageAudit      Stage = "audit"
	StageExport     Stage = "export"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []Stage{
	StageIngest,
	StageFlag,
	StageQualify,
	StagePrioritize,
	StageAudit,
	StageExport,
}

// StageRun records that a stage completed for a batch, so a restarted run
// can resume at the first incomplete stage instead of repeating classifier
// calls that already committed.
type StageRun struct {
	FileID      string    `json:"file_id"`
	Stage       Stage     `json:"stage"`
	CompletedAt time.Time `json:"completed_at"`
}
