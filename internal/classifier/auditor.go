package classifier

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/pkg/deepseek"
)

// auditorGateway implements Gateway on top of the DeepSeek chat API.
type auditorGateway struct {
	client deepseek.Client
	model  string
}

// NewAuditor creates the independently sourced auditor gateway.
func NewAuditor(client deepseek.Client, model string) Gateway {
	return &auditorGateway{client: client, model: model}
}

func (g *auditorGateway) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	resp, err := g.client.ChatCompletion(ctx, deepseek.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   &maxTokens,
		Temperature: req.Temperature,
		Messages: []deepseek.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "classifier: auditor %s", req.Stage)
	}
	if len(resp.Choices) == 0 {
		return "", eris.Errorf("classifier: auditor %s returned no choices", req.Stage)
	}

	zap.L().Info("token usage",
		zap.String("model", g.model),
		zap.String("stage", req.Stage),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
