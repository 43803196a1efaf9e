// Package pipeline implements the four-stage lead triage pipeline:
// flagging raw entries, qualifying success entries into leads, assigning
// primary priority labels, and independently auditing those labels.
//
// Stages run strictly in sequence and each commits its storage mutations
// in one transaction, so a stage either lands completely or not at all.
// There is no cross-stage transaction: a failure leaves earlier stages'
// work durable and queryable, and a rerun resumes at the first incomplete
// stage.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/config"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

// Pipeline sequences the triage stages for one batch. All collaborators
// are injected; the pipeline holds no global state.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	primary classifier.Gateway
	auditor classifier.Gateway
}

// New creates a Pipeline with its dependencies.
func New(cfg *config.Config, st store.Store, primary, auditor classifier.Gateway) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		primary: primary,
		auditor: auditor,
	}
}

// Result summarizes a completed pipeline run.
type Result struct {
	FileID       string               `json:"file_id"`
	Entries      int                  `json:"entries"`
	Flags        FlagSummary          `json:"flags"`
	Leads        int                  `json:"leads"`
	MeanAccuracy float64              `json:"mean_accuracy"`
	Artifacts    *ExportArtifacts     `json:"artifacts,omitempty"`
	Stages       map[model.Stage]bool `json:"stages"`
}

// Run executes the full pipeline for a new batch. A fileID already present
// in the store is rejected before any stage runs; reprocessing requires an
// explicit purge first. Records are ingested with status pending, then the
// stages run in order, failing fast on the first stage error.
//
// The idempotency check and the ingest are not mutually excluded across
// concurrent submissions of the same new fileID; distinct fileIDs are
// isolated by the partition key.
func (p *Pipeline) Run(ctx context.Context, fileID string, records []model.IngestRecord) (*Result, error) {
	exists, err := p.store.HasBatch(ctx, fileID)
	if err != nil {
		return nil, stageErr(model.StageIngest, KindCommit, err)
	}
	if exists {
		return nil, stageErr(model.StageIngest, KindIngestion,
			eris.Errorf("file_id %q already exists; purge it first to reprocess", fileID))
	}
	if len(records) == 0 {
		return nil, stageErr(model.StageIngest, KindIngestion, eris.New("no input records"))
	}

	entries := make([]model.Entry, len(records))
	for i, r := range records {
		entries[i] = model.Entry{
			ID:       uuid.New().String(),
			FileID:   fileID,
			RawInput: r.Text,
			Status:   model.EntryStatusPending,
		}
	}
	if err := p.store.InsertEntries(ctx, entries); err != nil {
		return nil, stageErr(model.StageIngest, KindCommit, err)
	}
	if err := p.store.MarkStageComplete(ctx, fileID, model.StageIngest); err != nil {
		return nil, stageErr(model.StageIngest, KindCommit, err)
	}

	zap.L().Info("batch ingested", zap.String("file_id", fileID), zap.Int("entries", len(entries)))

	return p.runFrom(ctx, fileID, map[model.Stage]bool{model.StageIngest: true})
}

// Resume continues a partially completed batch at its first incomplete
// stage. The batch must already be ingested.
func (p *Pipeline) Resume(ctx context.Context, fileID string) (*Result, error) {
	exists, err := p.store.HasBatch(ctx, fileID)
	if err != nil {
		return nil, stageErr(model.StageIngest, KindCommit, err)
	}
	if !exists {
		return nil, stageErr(model.StageIngest, KindIngestion,
			eris.Errorf("file_id %q not found; nothing to resume", fileID))
	}

	done, err := p.store.CompletedStages(ctx, fileID)
	if err != nil {
		return nil, stageErr(model.StageIngest, KindCommit, err)
	}
	done[model.StageIngest] = true

	return p.runFrom(ctx, fileID, done)
}

// runFrom runs the remaining stages in order, skipping the ones already
// marked complete, and assembles the run result.
func (p *Pipeline) runFrom(ctx context.Context, fileID string, done map[model.Stage]bool) (*Result, error) {
	result := &Result{FileID: fileID, Stages: done}
	log := zap.L().With(zap.String("file_id", fileID))

	if !done[model.StageFlag] {
		summary, err := FlagStage(ctx, p.store, p.primary, fileID, p.cfg.Pipeline.FlagChunkSize)
		if err != nil {
			return nil, err
		}
		result.Flags = *summary
		if err := p.store.MarkStageComplete(ctx, fileID, model.StageFlag); err != nil {
			return nil, stageErr(model.StageFlag, KindCommit, err)
		}
		done[model.StageFlag] = true
	} else {
		log.Info("skipping completed stage", zap.String("stage", string(model.StageFlag)))
	}

	if !done[model.StageQualify] {
		n, err := QualifyStage(ctx, p.store, p.primary, fileID)
		if err != nil {
			return nil, err
		}
		result.Leads = n
		if err := p.store.MarkStageComplete(ctx, fileID, model.StageQualify); err != nil {
			return nil, stageErr(model.StageQualify, KindCommit, err)
		}
		done[model.StageQualify] = true
	} else {
		log.Info("skipping completed stage", zap.String("stage", string(model.StageQualify)))
	}

	if !done[model.StagePrioritize] {
		if _, err := PrioritizeStage(ctx, p.store, p.primary, fileID); err != nil {
			return nil, err
		}
		if err := p.store.MarkStageComplete(ctx, fileID, model.StagePrioritize); err != nil {
			return nil, stageErr(model.StagePrioritize, KindCommit, err)
		}
		done[model.StagePrioritize] = true
	} else {
		log.Info("skipping completed stage", zap.String("stage", string(model.StagePrioritize)))
	}

	if !done[model.StageAudit] {
		summary, err := AuditStage(ctx, p.store, p.auditor, fileID, p.cfg.Pipeline.AuditChunkSize)
		if err != nil {
			return nil, err
		}
		result.MeanAccuracy = summary.MeanAccuracy
		if err := p.store.MarkStageComplete(ctx, fileID, model.StageAudit); err != nil {
			return nil, stageErr(model.StageAudit, KindCommit, err)
		}
		done[model.StageAudit] = true
	} else {
		log.Info("skipping completed stage", zap.String("stage", string(model.StageAudit)))
	}

	// Export always reruns: it is derived output, cheap to regenerate, and
	// a resumed run may target a different output directory.
	leads, err := p.store.ListLeads(ctx, fileID)
	if err != nil {
		return nil, stageErr(model.StageExport, KindCommit, err)
	}
	result.Leads = len(leads)
	if result.MeanAccuracy == 0 && len(leads) > 0 {
		result.MeanAccuracy = meanAuditScore(leads)
	}

	artifacts, err := ExportLeads(leads, fileID, p.cfg.Export.Dir)
	if err != nil {
		return nil, stageErr(model.StageExport, KindCommit, err)
	}
	result.Artifacts = artifacts
	if err := p.store.MarkStageComplete(ctx, fileID, model.StageExport); err != nil {
		return nil, stageErr(model.StageExport, KindCommit, err)
	}
	done[model.StageExport] = true

	entries, err := p.store.ListEntries(ctx, store.EntryFilter{FileID: fileID})
	if err != nil {
		return nil, stageErr(model.StageExport, KindCommit, err)
	}
	result.Entries = len(entries)

	log.Info("pipeline complete",
		zap.Int("entries", result.Entries),
		zap.Int("leads", result.Leads),
		zap.Float64("mean_accuracy", result.MeanAccuracy),
	)
	return result, nil
}

func meanAuditScore(leads []model.Lead) float64 {
	var sum float64
	var n int
	for _, l := range leads {
		if l.AuditScore != nil {
			sum += *l.AuditScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
