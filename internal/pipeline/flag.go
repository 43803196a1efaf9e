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

// flagChunkSize is the default number of entries submitted per classifier
// call during flagging.
const flagChunkSize = 20

const flagSystemPrompt = `You classify business inquiries for a company that helps digital marketing agencies scale. Classify each inquiry into exactly one category:

'success': a legitimate business request related to scaling, operations, team expansion, fulfillment, consulting, or process optimization. It mentions relevant details such as business type, revenue, growth goals, challenges, or a direct question about services.

'fail': irrelevant, incoherent, or lacking meaningful context. This includes random text, gibberish, spam, or messages with no actionable business information (e.g., 'hello', 'I need help', 'can you do marketing?'). Fail inquiries give no specifics about their business, problems, or needs.

'edge_case': contains elements requiring human review, such as requests for a direct video call or in-person meeting before sharing details, inquiries that are vague but show potential business intent, or messages about something other than a standard business inquiry (partnerships, job applications, media opportunities). If an inquiry is merely vague with no business context, it is a fail, not an edge case.

Respond with a JSON object: {"entries": [{"flag": "<success|fail|edge_case>", "reason": <string or null>}]}.
The reason must be null for success and fail. For edge_case it must be a very brief justification (e.g., 'Requested call before details').
Return exactly one classification per input, in input order. The response must contain exactly the same number of items as the input. Do not add any other fields.`

type flagResult struct {
	Flag   string  `json:"flag"`
	Reason *string `json:"reason"`
}

type flagEnvelope struct {
	Entries []flagResult `json:"entries"`
}

// FlagSummary reports per-flag counts for one flagging run.
type FlagSummary struct {
	Success   int `json:"success"`
	Fail      int `json:"fail"`
	EdgeCases int `json:"edge_cases"`
}

// FlagStage classifies every pending entry of a batch into success, fail
// or edge_case. Chunks of chunkSize entries are submitted per call;
// correlation is positional, so a response whose length differs from its
// chunk aborts the whole stage. All results are accumulated in memory and
// committed in one transaction, together with one EdgeCase row per
// edge_case flag.
func FlagStage(ctx context.Context, st store.Store, gw classifier.Gateway, fileID string, chunkSize int) (*FlagSummary, error) {
	const stage = model.StageFlag

	entries, err := st.ListEntries(ctx, store.EntryFilter{FileID: fileID, Status: model.EntryStatusPending})
	if err != nil {
		return nil, stageErr(stage, KindCommit, err)
	}
	if len(entries) == 0 {
		return nil, stageErr(stage, KindIngestion, eris.Errorf("no pending entries for file_id %s", fileID))
	}

	if chunkSize <= 0 {
		chunkSize = flagChunkSize
	}

	log := zap.L().With(zap.String("file_id", fileID), zap.String("stage", string(stage)))
	log.Info("flagging entries", zap.Int("count", len(entries)), zap.Int("chunk_size", chunkSize))

	var results []flagResult
	for i, chunk := range batch.Chunks(entries, chunkSize) {
		texts := make([]string, len(chunk))
		for j, e := range chunk {
			texts[j] = e.RawInput
		}
		payload, err := json.Marshal(texts)
		if err != nil {
			return nil, stageErr(stage, KindSchema, err)
		}

		temp := 0.2
		raw, err := gw.Complete(ctx, classifier.Request{
			Stage:       string(stage),
			System:      flagSystemPrompt,
			User:        string(payload),
			Temperature: &temp,
		})
		if err != nil {
			return nil, stageErr(stage, KindGateway, eris.Wrapf(err, "chunk %d", i))
		}

		var env flagEnvelope
		if err := decodeStrict([]byte(cleanJSON(raw)), &env); err != nil {
			return nil, stageErr(stage, KindSchema, eris.Wrapf(err, "chunk %d", i))
		}
		if err := batch.CheckPositional(chunk, env.Entries); err != nil {
			return nil, stageErr(stage, KindSchema, eris.Wrapf(err, "chunk %d", i))
		}
		results = append(results, env.Entries...)
	}

	if err := batch.CheckTotal(len(entries), len(results)); err != nil {
		return nil, stageErr(stage, KindSchema, err)
	}

	summary := &FlagSummary{}
	flags := make([]store.EntryFlag, len(entries))
	for i, entry := range entries {
		r := results[i]
		status := model.EntryStatus(r.Flag)
		if !model.ValidEntryStatus(status) {
			return nil, stageErr(stage, KindSchema,
				eris.Errorf("entry %s: flag %q not in {success, fail, edge_case}", entry.ID, r.Flag))
		}

		flag := store.EntryFlag{EntryID: entry.ID, Status: status}
		switch status {
		case model.EntryStatusEdgeCase:
			if r.Reason == nil || *r.Reason == "" {
				return nil, stageErr(stage, KindSchema,
					eris.Errorf("entry %s: edge_case flag without a reason", entry.ID))
			}
			flag.EdgeCase = &model.EdgeCase{
				ID:       uuid.New().String(),
				EntryID:  entry.ID,
				FileID:   entry.FileID,
				RawInput: entry.RawInput,
				Reason:   *r.Reason,
			}
			summary.EdgeCases++
		default:
			if r.Reason != nil {
				return nil, stageErr(stage, KindSchema,
					eris.Errorf("entry %s: %s flag carries a non-null reason", entry.ID, status))
			}
			if status == model.EntryStatusSuccess {
				summary.Success++
			} else {
				summary.Fail++
			}
		}
		flags[i] = flag
	}

	if err := st.ApplyFlags(ctx, flags); err != nil {
		return nil, stageErr(stage, KindCommit, err)
	}

	log.Info("flagging complete",
		zap.Int("success", summary.Success),
		zap.Int("fail", summary.Fail),
		zap.Int("edge_cases", summary.EdgeCases),
	)
	return summary, nil
}
