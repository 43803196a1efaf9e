package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

// --- Gateway mock ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Complete(ctx context.Context, req classifier.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

var _ classifier.Gateway = (*mockGateway)(nil)

// scriptGateway routes each request to a per-stage handler, for tests that
// need responses derived from the submitted payload.
type scriptGateway struct {
	handlers map[string]func(req classifier.Request) (string, error)
	calls    map[string]int
}

func newScriptGateway() *scriptGateway {
	return &scriptGateway{
		handlers: make(map[string]func(req classifier.Request) (string, error)),
		calls:    make(map[string]int),
	}
}

func (g *scriptGateway) on(stage string, fn func(req classifier.Request) (string, error)) {
	g.handlers[stage] = fn
}

func (g *scriptGateway) Complete(_ context.Context, req classifier.Request) (string, error) {
	g.calls[req.Stage]++
	fn, ok := g.handlers[req.Stage]
	if !ok {
		panic("no handler for stage " + req.Stage)
	}
	return fn(req)
}

var _ classifier.Gateway = (*scriptGateway)(nil)

// --- Store helpers ---

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEntries(t *testing.T, st store.Store, fileID string, texts ...string) []model.Entry {
	t.Helper()
	entries := make([]model.Entry, len(texts))
	for i, text := range texts {
		entries[i] = model.Entry{
			ID:       fileID + "-e" + string(rune('1'+i)),
			FileID:   fileID,
			RawInput: text,
			Status:   model.EntryStatusPending,
		}
	}
	require.NoError(t, st.InsertEntries(context.Background(), entries))
	return entries
}

func strPtr(s string) *string { return &s }
