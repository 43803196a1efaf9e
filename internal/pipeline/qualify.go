package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/batch"
	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

const qualifySystemPrompt = `You structure business inquiries. For each entry, extract the following details:

- company_name: if mentioned, otherwise null.
- industry: the industry type (e.g., SaaS, Retail, Marketing), or null.
- business_model: one of ['B2B', 'B2C', 'DTC', 'Unknown'], or null.
- budget: the amount the user is willing to spend (marketing, services, investment), or null.
- revenue: monthly revenue, ONLY if the user explicitly states revenue. Do NOT confuse it with budget. Convert stated figures to a monthly amount.
- growth_goal: monthly growth objective if the user mentions one. Do NOT confuse it with budget. Convert to a monthly amount.
- urgency: one of ['Urgent', 'High', 'Medium', 'Low'] based on how soon they need help, or null.
- sentiment: one of ['Hot', 'Neutral', 'Cold'] based on interest level, or null.
- notes: ONLY specific user requests, not the entire inquiry, or null.

Every extracted entry must correspond 1:1 with an input entry and echo its id unchanged.
Respond with JSON: {"entries": [{"id": "<input id>", "company_name": ..., "industry": ..., "business_model": ..., "budget": ..., "revenue": ..., "growth_goal": ..., "urgency": ..., "sentiment": ..., "notes": ...}]}. Do not add any other fields.`

type qualifyInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type qualifyResult struct {
	ID            string  `json:"id"`
	CompanyName   *string `json:"company_name"`
	Industry      *string `json:"industry"`
	BusinessModel *string `json:"business_model"`
	Budget        *string `json:"budget"`
	Revenue       *string `json:"revenue"`
	GrowthGoal    *string `json:"growth_goal"`
	Urgency       *string `json:"urgency"`
	Sentiment     *string `json:"sentiment"`
	Notes         *string `json:"notes"`
}

type qualifyEnvelope struct {
	Entries []qualifyResult `json:"entries"`
}

// QualifyStage extracts structured lead fields from every success-flagged
// entry. The whole input is submitted as a single chunk; correlation is
// id-keyed, so an output that omits any input entry's id fails the stage
// with zero leads created. One Lead per entry is committed in a single
// transaction, fields copied verbatim from the classifier output.
//
// An empty fileID widens the input to success entries across all batches.
func QualifyStage(ctx context.Context, st store.Store, gw classifier.Gateway, fileID string) (int, error) {
	const stage = model.StageQualify

	entries, err := st.ListEntries(ctx, store.EntryFilter{FileID: fileID, Status: model.EntryStatusSuccess})
	if err != nil {
		return 0, stageErr(stage, KindCommit, err)
	}
	if len(entries) == 0 {
		zap.L().Info("no success entries to qualify", zap.String("file_id", fileID))
		return 0, nil
	}

	inputs := make([]qualifyInput, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		inputs[i] = qualifyInput{ID: e.ID, Text: e.RawInput}
		ids[i] = e.ID
	}
	payload, err := json.Marshal(map[string]any{"entries": inputs})
	if err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}

	temp := 0.2
	raw, err := gw.Complete(ctx, classifier.Request{
		Stage:       string(stage),
		System:      qualifySystemPrompt,
		User:        string(payload),
		Temperature: &temp,
	})
	if err != nil {
		return 0, stageErr(stage, KindGateway, err)
	}

	var env qualifyEnvelope
	if err := decodeStrict([]byte(cleanJSON(raw)), &env); err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}

	byID, err := batch.CorrelateByID(ids, env.Entries, func(r qualifyResult) string { return r.ID })
	if err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}

	leads := make([]model.Lead, len(entries))
	for i, entry := range entries {
		r := byID[entry.ID]

		lead := model.Lead{
			ID:          uuid.New().String(),
			FileID:      entry.FileID,
			EntryID:     entry.ID,
			CompanyName: r.CompanyName,
			Industry:    r.Industry,
			Budget:      r.Budget,
			Revenue:     r.Revenue,
			GrowthGoal:  r.GrowthGoal,
			Notes:       r.Notes,
		}

		if r.BusinessModel != nil {
			bm := model.BusinessModel(*r.BusinessModel)
			if !model.ValidBusinessModel(bm) {
				return 0, stageErr(stage, KindSchema,
					eris.Errorf("entry %s: business_model %q not in enum", entry.ID, *r.BusinessModel))
			}
			lead.BusinessModel = &bm
		}
		if r.Urgency != nil {
			u := model.Urgency(*r.Urgency)
			if !model.ValidUrgency(u) {
				return 0, stageErr(stage, KindSchema,
					eris.Errorf("entry %s: urgency %q not in enum", entry.ID, *r.Urgency))
			}
			lead.Urgency = &u
		}
		if r.Sentiment != nil {
			sent := model.Sentiment(*r.Sentiment)
			if !model.ValidSentiment(sent) {
				return 0, stageErr(stage, KindSchema,
					eris.Errorf("entry %s: sentiment %q not in enum", entry.ID, *r.Sentiment))
			}
			lead.Sentiment = &sent
		}

		leads[i] = lead
	}

	if err := st.CreateLeads(ctx, leads); err != nil {
		return 0, stageErr(stage, KindCommit, err)
	}

	zap.L().Info("leads created", zap.String("file_id", fileID), zap.Int("count", len(leads)))
	return len(leads), nil
}
