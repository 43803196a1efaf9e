package classifier

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/pkg/anthropic"
)

// primaryGateway implements Gateway on top of the Anthropic messages API.
type primaryGateway struct {
	client anthropic.Client
	model  string
}

// NewPrimary creates the primary classifier gateway.
func NewPrimary(client anthropic.Client, model string) Gateway {
	return &primaryGateway{client: client, model: model}
}

func (g *primaryGateway) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages: []anthropic.Message{
			{Role: "user", Content: req.User},
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "classifier: primary %s", req.Stage)
	}

	resp.Usage.LogUsage(g.model, req.Stage)

	text := extractText(resp)
	if text == "" {
		return "", eris.Errorf("classifier: primary %s returned empty response", req.Stage)
	}
	return text, nil
}

func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
