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

const prioritizeSystemPrompt = `You determine lead priority levels. Each lead has structured data: company name, industry, business model, budget, revenue, growth goal, urgency, and sentiment. Assign one priority level per lead based on overall potential:

- 'Urgent': critical business need, high budget, immediate action required.
- 'High': strong growth potential, clear budget, and serious interest.
- 'Medium': business shows interest but lacks strong urgency or budget.
- 'Low': weak interest, unclear goals, or very low budget.

Respond with JSON: {"priorities": ["<Urgent|High|Medium|Low>", ...]} containing exactly one label per input lead, in input order. Do not add any other fields.`

// prioritizeInput is one lead as submitted to the primary classifier. No
// identifier is exchanged: the output contract is purely positional and
// relies on the classifier preserving input order, which the length check
// below can only partially defend.
type prioritizeInput struct {
	Industry      *string              `json:"industry"`
	BusinessModel *model.BusinessModel `json:"business_model"`
	Budget        *string              `json:"budget"`
	Revenue       *string              `json:"revenue"`
	GrowthGoal    *string              `json:"growth_goal"`
	Urgency       *model.Urgency       `json:"urgency"`
	Sentiment     *model.Sentiment     `json:"sentiment"`
}

type prioritizeEnvelope struct {
	Priorities []string `json:"priorities"`
}

// PrioritizeStage assigns a primary priority label to every lead of a
// batch. The whole lead set goes out as one chunk; the response is paired
// back by sequence index after a defensive length check. A length mismatch
// fails the stage with zero mutations.
func PrioritizeStage(ctx context.Context, st store.Store, gw classifier.Gateway, fileID string) (int, error) {
	const stage = model.StagePrioritize

	leads, err := st.ListLeads(ctx, fileID)
	if err != nil {
		return 0, stageErr(stage, KindCommit, err)
	}
	if len(leads) == 0 {
		zap.L().Info("no leads to prioritize", zap.String("file_id", fileID))
		return 0, nil
	}

	inputs := make([]prioritizeInput, len(leads))
	for i, l := range leads {
		inputs[i] = prioritizeInput{
			Industry:      l.Industry,
			BusinessModel: l.BusinessModel,
			Budget:        l.Budget,
			Revenue:       l.Revenue,
			GrowthGoal:    l.GrowthGoal,
			Urgency:       l.Urgency,
			Sentiment:     l.Sentiment,
		}
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}

	temp := 0.0
	raw, err := gw.Complete(ctx, classifier.Request{
		Stage:       string(stage),
		System:      prioritizeSystemPrompt,
		User:        string(payload),
		Temperature: &temp,
	})
	if err != nil {
		return 0, stageErr(stage, KindGateway, err)
	}

	var env prioritizeEnvelope
	if err := decodeStrict([]byte(cleanJSON(raw)), &env); err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}
	if err := batch.CheckPositional(leads, env.Priorities); err != nil {
		return 0, stageErr(stage, KindSchema, err)
	}

	updates := make([]store.LeadPriority, len(leads))
	for i, lead := range leads {
		p := model.Priority(env.Priorities[i])
		if !model.ValidPriority(p) {
			return 0, stageErr(stage, KindSchema,
				eris.Errorf("lead %s: priority %q not in {Urgent, High, Medium, Low}", lead.ID, env.Priorities[i]))
		}
		updates[i] = store.LeadPriority{LeadID: lead.ID, Priority: p}
	}

	if err := st.SetLeadPriorities(ctx, updates); err != nil {
		return 0, stageErr(stage, KindCommit, err)
	}

	zap.L().Info("priorities assigned", zap.String("file_id", fileID), zap.Int("count", len(updates)))
	return len(updates), nil
}
