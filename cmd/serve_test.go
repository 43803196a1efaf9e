package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/config"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/pipeline"
	"github.com/sells-group/triage-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedBatch(t *testing.T, st store.Store, fileID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InsertEntries(ctx, []model.Entry{
		{ID: fileID + "-e1", FileID: fileID, RawInput: "need marketing help", Status: model.EntryStatusSuccess},
		{ID: fileID + "-e2", FileID: fileID, RawInput: "unclear request", Status: model.EntryStatusEdgeCase},
	}))
	require.NoError(t, st.ApplyFlags(ctx, []store.EntryFlag{
		{EntryID: fileID + "-e2", Status: model.EntryStatusEdgeCase, EdgeCase: &model.EdgeCase{
			ID: fileID + "-ec1", EntryID: fileID + "-e2", FileID: fileID,
			RawInput: "unclear request", Reason: "No concrete ask",
		}},
	}))
	require.NoError(t, st.CreateLeads(ctx, []model.Lead{
		{ID: fileID + "-l1", FileID: fileID, EntryID: fileID + "-e1"},
	}))
	require.NoError(t, st.MarkStageComplete(ctx, fileID, model.StageIngest))
	require.NoError(t, st.MarkStageComplete(ctx, fileID, model.StageFlag))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHandleListEntries_FiltersByStatus(t *testing.T) {
	st := newTestStore(t)
	seedBatch(t, st, "acme")

	req := httptest.NewRequest(http.MethodGet, "/entries?file_id=acme&status=success", nil)
	rr := httptest.NewRecorder()
	handleListEntries(st)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleListEntries_PendingIsAcceptedFilter(t *testing.T) {
	st := newTestStore(t)

	req := httptest.NewRequest(http.MethodGet, "/entries?status=pending", nil)
	rr := httptest.NewRecorder()
	handleListEntries(st)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleListEntries_InvalidStatus(t *testing.T) {
	st := newTestStore(t)

	req := httptest.NewRequest(http.MethodGet, "/entries?status=bogus", nil)
	rr := httptest.NewRecorder()
	handleListEntries(st)(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], `invalid status "bogus"`)
}

func TestHandleListLeads(t *testing.T) {
	st := newTestStore(t)
	seedBatch(t, st, "acme")

	req := httptest.NewRequest(http.MethodGet, "/leads?file_id=acme", nil)
	rr := httptest.NewRecorder()
	handleListLeads(st)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeBody(t, rr)["count"])
}

func TestHandleListEdgeCases(t *testing.T) {
	st := newTestStore(t)
	seedBatch(t, st, "acme")

	req := httptest.NewRequest(http.MethodGet, "/edge-cases?file_id=acme", nil)
	rr := httptest.NewRecorder()
	handleListEdgeCases(st)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeBody(t, rr)["count"])
}

func TestHandleBatchStatus(t *testing.T) {
	st := newTestStore(t)
	seedBatch(t, st, "acme")

	r := chi.NewRouter()
	r.Get("/batches/{fileID}", handleBatchStatus(st))

	req := httptest.NewRequest(http.MethodGet, "/batches/acme", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "acme", body["file_id"])
	assert.Equal(t, float64(2), body["entries"])
	assert.Equal(t, float64(1), body["leads"])
	assert.Equal(t, float64(1), body["edge_cases"])

	stages, ok := body["stages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, stages["ingest"])
	assert.Equal(t, true, stages["flag"])
}

func TestHandleBatchStatus_NotFound(t *testing.T) {
	st := newTestStore(t)

	r := chi.NewRouter()
	r.Get("/batches/{fileID}", handleBatchStatus(st))

	req := httptest.NewRequest(http.MethodGet, "/batches/ghost", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlePurgeBatch(t *testing.T) {
	st := newTestStore(t)
	seedBatch(t, st, "acme")

	r := chi.NewRouter()
	r.Delete("/batches/{fileID}", handlePurgeBatch(st))

	req := httptest.NewRequest(http.MethodDelete, "/batches/acme", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	exists, err := st.HasBatch(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHandlePurgeBatch_NotFound(t *testing.T) {
	st := newTestStore(t)

	r := chi.NewRouter()
	r.Delete("/batches/{fileID}", handlePurgeBatch(st))

	req := httptest.NewRequest(http.MethodDelete, "/batches/ghost", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// failingGateway always errors; used to drive a stage failure through the
// upload handler.
type failingGateway struct{}

func (failingGateway) Complete(context.Context, classifier.Request) (string, error) {
	return "", errors.New("service unavailable")
}

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	cfg = &config.Config{}
	cfg.Server.UploadDir = t.TempDir()
	cfg.Export.Dir = t.TempDir()

	st := newTestStore(t)
	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, failingGateway{}, failingGateway{}),
	}
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleProcessFile_StageFailureReturns400(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	handleProcessFile(context.Background(), env)(rr, uploadRequest(t, "weekly.txt", "need marketing help\n"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "flag", body["stage"])
	assert.Equal(t, "gateway", body["kind"])
	assert.Contains(t, body["error"], "stage flag")

	// Ingest committed before the flag stage failed; the batch is durable.
	exists, err := env.Store.HasBatch(context.Background(), "weekly")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleProcessFile_DuplicateBatchConflict(t *testing.T) {
	env := newTestEnv(t)
	seedBatch(t, env.Store, "weekly")

	rr := httptest.NewRecorder()
	handleProcessFile(context.Background(), env)(rr, uploadRequest(t, "weekly.txt", "need marketing help\n"))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], `"weekly" already exists`)
}

func TestHandleProcessFile_RejectsBadExtension(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "inquiries.csv")
	require.NoError(t, err)
	part.Write([]byte("a,b")) //nolint:errcheck
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()

	// The extension check runs before the store or pipeline is touched.
	handleProcessFile(context.Background(), nil)(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], `unsupported file extension ".csv"`)
}

func TestHandleProcessFile_MissingFileField(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()

	handleProcessFile(context.Background(), nil)(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "file field is required")
}
