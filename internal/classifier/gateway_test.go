package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/triage-cli/internal/resilience"
	"github.com/sells-group/triage-cli/pkg/anthropic"
	"github.com/sells-group/triage-cli/pkg/deepseek"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockDeepSeekClient struct {
	mock.Mock
}

func (m *mockDeepSeekClient) ChatCompletion(ctx context.Context, req deepseek.ChatCompletionRequest) (*deepseek.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deepseek.ChatCompletionResponse), args.Error(1)
}

var (
	_ anthropic.Client = (*mockAnthropicClient)(nil)
	_ deepseek.Client  = (*mockDeepSeekClient)(nil)
)

func TestPrimaryComplete_JoinsContentBlocks(t *testing.T) {
	ctx := context.Background()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{
				{Type: "text", Text: `{"entries":`},
				{Type: "text", Text: `[]}`},
			},
			Usage: anthropic.TokenUsage{InputTokens: 50, OutputTokens: 10},
		}, nil).Once()

	gw := NewPrimary(client, "claude-sonnet-4-5-20250929")

	out, err := gw.Complete(ctx, Request{Stage: "flag", System: "sys", User: "[]"})

	require.NoError(t, err)
	assert.Equal(t, "{\"entries\":\n[]}", out)
	client.AssertExpectations(t)
}

func TestPrimaryComplete_PassesModelAndTemperature(t *testing.T) {
	ctx := context.Background()
	temp := 0.2

	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.System == "the instructions" &&
			req.MaxTokens == 4096 &&
			req.Temperature != nil && *req.Temperature == temp &&
			len(req.Messages) == 1 && req.Messages[0].Role == "user"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Text: "ok"}},
	}, nil).Once()

	gw := NewPrimary(client, "claude-sonnet-4-5-20250929")

	_, err := gw.Complete(ctx, Request{
		Stage: "qualify", System: "the instructions", User: "payload", Temperature: &temp,
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestPrimaryComplete_EmptyResponse(t *testing.T) {
	ctx := context.Background()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{}, nil).Once()

	gw := NewPrimary(client, "model")

	_, err := gw.Complete(ctx, Request{Stage: "flag"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestAuditorComplete_SystemAndUserMessages(t *testing.T) {
	ctx := context.Background()

	client := &mockDeepSeekClient{}
	client.On("ChatCompletion", ctx, mock.MatchedBy(func(req deepseek.ChatCompletionRequest) bool {
		return req.Model == "deepseek-chat" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" &&
			req.Messages[1].Role == "user" &&
			req.MaxTokens != nil && *req.MaxTokens == 8192
	})).Return(&deepseek.ChatCompletionResponse{
		Choices: []deepseek.Choice{{Message: deepseek.Message{Content: "[]"}}},
	}, nil).Once()

	gw := NewAuditor(client, "deepseek-chat")

	out, err := gw.Complete(ctx, Request{Stage: "audit", System: "audit these", User: "[]"})

	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	client.AssertExpectations(t)
}

func TestAuditorComplete_NoChoices(t *testing.T) {
	ctx := context.Background()

	client := &mockDeepSeekClient{}
	client.On("ChatCompletion", ctx, mock.AnythingOfType("deepseek.ChatCompletionRequest")).
		Return(&deepseek.ChatCompletionResponse{}, nil).Once()

	gw := NewAuditor(client, "deepseek-chat")

	_, err := gw.Complete(ctx, Request{Stage: "audit"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

// fakeGateway counts calls and fails a configurable number of times.
type fakeGateway struct {
	failures int
	calls    int
}

func (f *fakeGateway) Complete(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", resilience.NewTransientError(eris.New("unexpected status 503"), 503)
	}
	return "recovered", nil
}

func TestWithResilience_RetriesTransient(t *testing.T) {
	inner := &fakeGateway{failures: 2}
	cfg := resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.0,
	}

	gw := WithResilience(inner, cfg, nil, 0)

	out, err := gw.Complete(context.Background(), Request{Stage: "flag"})

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, inner.calls)
}

func TestWithResilience_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &fakeGateway{failures: 10}
	cfg := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.0,
	}

	gw := WithResilience(inner, cfg, nil, 0)

	_, err := gw.Complete(context.Background(), Request{Stage: "flag"})

	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestWithResilience_RateLimiterWaits(t *testing.T) {
	inner := &fakeGateway{}
	limiter := rate.NewLimiter(rate.Every(10*time.Millisecond), 1)

	gw := WithResilience(inner, resilience.DefaultRetryConfig(), limiter, 0)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := gw.Complete(context.Background(), Request{Stage: "flag"})
		require.NoError(t, err)
	}
	// Burst of 1: calls two and three each wait for a token.
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWithResilience_TimeoutAppliesPerAttempt(t *testing.T) {
	blocker := gatewayFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	cfg := resilience.RetryConfig{MaxAttempts: 1}
	gw := WithResilience(blocker, cfg, nil, 5*time.Millisecond)

	start := time.Now()
	_, err := gw.Complete(context.Background(), Request{Stage: "audit"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

type gatewayFunc func(ctx context.Context, req Request) (string, error)

func (f gatewayFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
