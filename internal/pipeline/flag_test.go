package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

func TestFlagStage_ClassifiesAndCommits(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	entries := seedEntries(t, st, "batch1",
		"We are a B2B SaaS doing $80k/mo, need help scaling fulfillment",
		"hello",
		"Want to discuss on a video call before sharing details",
	)

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [
			{"flag": "success", "reason": null},
			{"flag": "fail", "reason": null},
			{"flag": "edge_case", "reason": "Requested call before details"}
		]}`, nil).Once()

	summary, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Fail)
	assert.Equal(t, 1, summary.EdgeCases)

	got, err := st.ListEntries(ctx, store.EntryFilter{FileID: "batch1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.EntryStatusSuccess, got[0].Status)
	assert.Equal(t, model.EntryStatusFail, got[1].Status)
	assert.Equal(t, model.EntryStatusEdgeCase, got[2].Status)

	cases, err := st.ListEdgeCases(ctx, "batch1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, entries[2].ID, cases[0].EntryID)
	assert.Equal(t, "Requested call before details", cases[0].Reason)
	gw.AssertExpectations(t)
}

func TestFlagStage_ChunksBySize(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "a", "b", "c", "d", "e")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "fail", "reason": null}, {"flag": "fail", "reason": null}]}`, nil).Twice()
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "fail", "reason": null}]}`, nil).Once()

	summary, err := FlagStage(ctx, st, gw, "batch1", 2)

	require.NoError(t, err)
	assert.Equal(t, 5, summary.Fail)
	gw.AssertExpectations(t)
}

func TestFlagStage_PositionalMismatchAbortsWithoutCommit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "one", "two", "three")

	gw := &mockGateway{}
	// Two results for three inputs.
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "success", "reason": null}, {"flag": "fail", "reason": null}]}`, nil).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, model.StageFlag, se.Stage)
	assert.Equal(t, KindSchema, se.Kind)

	// No entry was mutated.
	pending, err := st.ListEntries(ctx, store.EntryFilter{FileID: "batch1", Status: model.EntryStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestFlagStage_EdgeCaseRequiresReason(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "vague but promising")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "edge_case", "reason": null}]}`, nil).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	se, _ := AsStageError(err)
	assert.Equal(t, KindSchema, se.Kind)
	assert.Contains(t, err.Error(), "without a reason")
}

func TestFlagStage_ReasonOnSuccessRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "real inquiry")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "success", "reason": "looks good"}]}`, nil).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-null reason")
}

func TestFlagStage_UnknownFlagRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "inquiry")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "maybe", "reason": null}]}`, nil).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `"maybe"`)
}

func TestFlagStage_UndeclaredFieldRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "inquiry")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return(`{"entries": [{"flag": "success", "reason": null, "confidence": 0.8}]}`, nil).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	se, _ := AsStageError(err)
	assert.Equal(t, KindSchema, se.Kind)
}

func TestFlagStage_NoPendingEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	gw := &mockGateway{}

	_, err := FlagStage(ctx, st, gw, "missing", 20)

	require.Error(t, err)
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, KindIngestion, se.Kind)
	gw.AssertNotCalled(t, "Complete")
}

func TestFlagStage_GatewayErrorFailsFast(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "a", "b")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return("", eris.New("upstream 500")).Once()

	_, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.Error(t, err)
	se, _ := AsStageError(err)
	assert.Equal(t, KindGateway, se.Kind)
}

func TestFlagStage_FencedResponseAccepted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, "batch1", "inquiry")

	gw := &mockGateway{}
	gw.On("Complete", ctx, mock.AnythingOfType("classifier.Request")).
		Return("```json\n{\"entries\": [{\"flag\": \"success\", \"reason\": null}]}\n```", nil).Once()

	summary, err := FlagStage(ctx, st, gw, "batch1", 20)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
}

func TestFlagSummary_SerializesSnakeCase(t *testing.T) {
	data, err := json.Marshal(FlagSummary{Success: 2, Fail: 1, EdgeCases: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": 2, "fail": 1, "edge_cases": 1}`, string(data))
}
