// Package classifier abstracts the two externally sourced text
// classification services behind a single gateway interface. The primary
// gateway (Anthropic) serves the flagging, qualification and priority
// stages; the auditor gateway (DeepSeek) independently re-evaluates the
// primary's priority labels.
package classifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/triage-cli/internal/resilience"
)

// Request is one chunk submission: a system instruction declaring the
// output contract and a user payload carrying the ordered records.
type Request struct {
	Stage       string // stage name, for log attribution
	System      string
	User        string
	MaxTokens   int
	Temperature *float64
}

// Gateway submits an ordered batch of records to a classifier and returns
// the raw model text. Implementations are synchronous and blocking; the
// caller owns chunking, correlation and schema validation.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// resilientGateway decorates a Gateway with request rate limiting, a
// per-call timeout and bounded retry on transient failures.
type resilientGateway struct {
	inner   Gateway
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	timeout time.Duration
}

// WithResilience wraps g so each Complete call waits for the rate limiter,
// runs under a per-attempt timeout, and retries transient failures with
// jittered backoff. A nil limiter disables rate limiting; a zero timeout
// disables the per-attempt deadline.
func WithResilience(g Gateway, cfg resilience.RetryConfig, limiter *rate.Limiter, timeout time.Duration) Gateway {
	return &resilientGateway{
		inner:   g,
		retry:   cfg,
		limiter: limiter,
		timeout: timeout,
	}
}

func (g *resilientGateway) Complete(ctx context.Context, req Request) (string, error) {
	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.inner.Complete(ctx, req)
	})
}
