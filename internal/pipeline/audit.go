package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/batch"
	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

// auditChunkSize is the default number of leads submitted per auditor call.
const auditChunkSize = 40

const auditSystemPrompt = `You are an independent auditor evaluating the accuracy of lead classifications made by another AI. Each lead consists of:
- raw_inquiry: the original text the user provided.
- structured_data: extracted details such as company name, industry, budget, urgency, and sentiment.
- primary_priority_level: the other AI's priority classification of the lead.

Verify whether the classification is correct and assign your own corrected priority level from all available data:
- 'Urgent': needs immediate action.
- 'High': strong growth potential but not immediate.
- 'Medium': moderate relevance but not urgent.
- 'Low': weak intent or unclear need.

For each lead return:
1. "id": the lead's id, echoed unchanged.
2. "priority_level": your own classification.
3. "notes": if the primary AI made a mistake, briefly explain the difference between your classification and theirs. If the levels match, leave this null or empty.
4. "accuracy_score": a number from 1 to 100 expressing how accurate the primary classification was. 100 is an exact match; 1 is a severe misclassification. Adjacent labels should score much higher than distant ones: if the primary said 'High' and you say 'Urgent', a score around 70-90 is appropriate depending on the data; if the primary said 'Low' and you say 'High', something like 20-50.

Respond with a JSON array, one object per input lead:
[{"id": "...", "priority_level": "...", "notes": "...", "accuracy_score": ...}, ...]
The output must contain one object for every input lead.`

// auditInput is one lead as submitted to the auditor, carrying an explicit
// correlating id (the originating entry's id), the raw inquiry, the
// structured fields, and the primary classifier's label.
type auditInput struct {
	ID             string          `json:"id"`
	RawInquiry     string          `json:"raw_inquiry"`
	StructuredData auditFields     `json:"structured_data"`
	PrimaryLevel   *model.Priority `json:"primary_priority_level"`
}

type auditFields struct {
	CompanyName   *string              `json:"company_name"`
	Industry      *string              `json:"industry"`
	BusinessModel *model.BusinessModel `json:"business_model"`
	Budget        *string              `json:"budget"`
	Revenue       *string              `json:"revenue"`
	GrowthGoal    *string              `json:"growth_goal"`
	Urgency       *model.Urgency       `json:"urgency"`
	Sentiment     *model.Sentiment     `json:"sentiment"`
	Notes         *string              `json:"notes"`
}

// auditRecord is one auditor output object. Fields are parsed leniently;
// validation happens per record so a single malformed record can be
// dropped without discarding its chunk.
type auditRecord struct {
	ID            string          `json:"id"`
	PriorityLevel string          `json:"priority_level"`
	Notes         *string         `json:"notes"`
	AccuracyScore json.RawMessage `json:"accuracy_score"`
}

// auditResult is a validated auditor verdict for one lead.
type auditResult struct {
	ID       string
	Priority model.Priority
	Notes    *string
	Score    float64
}

// AuditSummary reports the outcome of one audit run.
type AuditSummary struct {
	Audited      int
	MeanAccuracy float64
}

// AuditStage independently re-evaluates the primary classifier's priority
// labels using the auditor gateway. Leads go out in chunks joined with the
// raw text of their originating entry; correlation is id-keyed.
//
// Failure tolerance is two-level: inside an otherwise valid chunk a
// malformed record (bad id, unknown label, unparseable or out-of-range
// score) is dropped and logged while the rest of the chunk is kept; but
// once all chunks are processed the accumulated total must equal the lead
// count, otherwise the whole stage fails and no lead is mutated.
func AuditStage(ctx context.Context, st store.Store, gw classifier.Gateway, fileID string, chunkSize int) (*AuditSummary, error) {
	const stage = model.StageAudit

	lws, err := st.ListLeadsWithEntries(ctx, fileID)
	if err != nil {
		return nil, stageErr(stage, KindCommit, err)
	}
	if len(lws) == 0 {
		zap.L().Info("no leads to audit", zap.String("file_id", fileID))
		return &AuditSummary{}, nil
	}

	if chunkSize <= 0 {
		chunkSize = auditChunkSize
	}

	log := zap.L().With(zap.String("file_id", fileID), zap.String("stage", string(stage)))
	log.Info("auditing leads", zap.Int("count", len(lws)), zap.Int("chunk_size", chunkSize))

	results := make(map[string]auditResult, len(lws))
	for i, chunk := range batch.Chunks(lws, chunkSize) {
		inputs := make([]auditInput, len(chunk))
		for j, lw := range chunk {
			inputs[j] = auditInput{
				ID:           lw.Lead.EntryID,
				RawInquiry:   lw.RawInput,
				PrimaryLevel: lw.Lead.Priority,
				StructuredData: auditFields{
					CompanyName:   lw.Lead.CompanyName,
					Industry:      lw.Lead.Industry,
					BusinessModel: lw.Lead.BusinessModel,
					Budget:        lw.Lead.Budget,
					Revenue:       lw.Lead.Revenue,
					GrowthGoal:    lw.Lead.GrowthGoal,
					Urgency:       lw.Lead.Urgency,
					Sentiment:     lw.Lead.Sentiment,
					Notes:         lw.Lead.Notes,
				},
			}
		}
		payload, err := json.Marshal(inputs)
		if err != nil {
			return nil, stageErr(stage, KindSchema, err)
		}

		temp := 0.2
		raw, err := gw.Complete(ctx, classifier.Request{
			Stage:       string(stage),
			System:      auditSystemPrompt,
			User:        string(payload),
			Temperature: &temp,
		})
		if err != nil {
			return nil, stageErr(stage, KindGateway, eris.Wrapf(err, "chunk %d", i))
		}

		var records []auditRecord
		if err := json.Unmarshal([]byte(cleanJSON(raw)), &records); err != nil {
			return nil, stageErr(stage, KindSchema, eris.Wrapf(err, "chunk %d", i))
		}

		for _, rec := range records {
			res, err := validateAuditRecord(rec)
			if err != nil {
				log.Warn("dropping malformed audit record",
					zap.String("id", rec.ID),
					zap.Error(err),
				)
				continue
			}
			results[res.ID] = *res
		}
	}

	// Stage-level commit gate: dropped records that leave the totals short
	// fail the entire stage even though their chunks individually parsed.
	if err := batch.CheckTotal(len(lws), len(results)); err != nil {
		return nil, stageErr(stage, KindRecordMismatch, err)
	}

	updates := make([]store.LeadAudit, 0, len(lws))
	var totalScore float64
	for _, lw := range lws {
		res, ok := results[lw.Lead.EntryID]
		if !ok {
			return nil, stageErr(stage, KindRecordMismatch,
				eris.Errorf("no audit result for entry %s", lw.Lead.EntryID))
		}
		updates = append(updates, store.LeadAudit{
			LeadID:   lw.Lead.ID,
			Priority: res.Priority,
			Notes:    res.Notes,
			Score:    res.Score,
		})
		totalScore += res.Score
	}

	if err := st.SetLeadAudits(ctx, updates); err != nil {
		return nil, stageErr(stage, KindCommit, err)
	}

	mean := totalScore / float64(len(updates))
	log.Info("audit complete",
		zap.Int("audited", len(updates)),
		zap.Float64("mean_accuracy", mean),
	)
	return &AuditSummary{Audited: len(updates), MeanAccuracy: mean}, nil
}

func validateAuditRecord(rec auditRecord) (*auditResult, error) {
	if rec.ID == "" {
		return nil, eris.New("missing id")
	}
	p := model.Priority(rec.PriorityLevel)
	if !model.ValidPriority(p) {
		return nil, eris.Errorf("priority %q not in {Urgent, High, Medium, Low}", rec.PriorityLevel)
	}
	if len(rec.AccuracyScore) == 0 {
		return nil, eris.New("missing accuracy_score")
	}
	var score flexFloat
	if err := score.UnmarshalJSON(rec.AccuracyScore); err != nil {
		return nil, eris.Wrap(err, "unparseable accuracy_score")
	}
	if score < 1 || score > 100 {
		return nil, eris.Errorf("accuracy_score %v outside [1,100]", float64(score))
	}

	notes := rec.Notes
	if notes != nil && *notes == "" {
		notes = nil
	}
	return &auditResult{
		ID:       rec.ID,
		Priority: p,
		Notes:    notes,
		Score:    float64(score),
	}, nil
}
