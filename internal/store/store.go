package store

import (
	"context"

	"github.com/sells-group/triage-cli/internal/model"
)

// EntryFilter specifies criteria for listing entries.
type EntryFilter struct {
	FileID string
	Status model.EntryStatus
}

// EntryFlag is one Stage-1 result: a terminal status for an entry, plus an
// edge-case record when the flag is edge_case.
type EntryFlag struct {
	EntryID  string
	Status   model.EntryStatus
	EdgeCase *model.EdgeCase
}

// LeadPriority is one Stage-3 result.
type LeadPriority struct {
	LeadID   string
	Priority model.Priority
}

// LeadAudit is one Stage-4 result.
type LeadAudit struct {
	LeadID   string
	Priority model.Priority
	Notes    *string
	Score    float64
}

// Store defines the persistence interface for the triage pipeline. All
// records are partitioned by file_id, the batch-job identifier. Every
// stage-commit method (ApplyFlags, CreateLeads, SetLeadPriorities,
// SetLeadAudits) runs in a single transaction so a stage's mutations land
// atomically or not at all.
type Store interface {
	// Entries
	InsertEntries(ctx context.Context, entries []model.Entry) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]model.Entry, error)
	ApplyFlags(ctx context.Context, flags []EntryFlag) error

	// Leads
	CreateLeads(ctx context.Context, leads []model.Lead) error
	ListLeads(ctx context.Context, fileID string) ([]model.Lead, error)
	ListLeadsWithEntries(ctx context.Context, fileID string) ([]model.LeadWithEntry, error)
	SetLeadPriorities(ctx context.Context, updates []LeadPriority) error
	SetLeadAudits(ctx context.Context, updates []LeadAudit) error

	// Edge cases
	ListEdgeCases(ctx context.Context, fileID string) ([]model.EdgeCase, error)

	// Batch lifecycle
	HasBatch(ctx context.Context, fileID string) (bool, error)
	PurgeBatch(ctx context.Context, fileID string) error
	CompletedStages(ctx context.Context, fileID string) (map[model.Stage]bool, error)
	MarkStageComplete(ctx context.Context, fileID string, stage model.Stage) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
