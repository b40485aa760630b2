package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Gate wraps a Summarizer with the service failure policy:
//   - rate limits are retried with exponential backoff for as long as the
//     context allows, and never reach the caller;
//   - context-length overflows surface at once as ErrPromptTooLong;
//   - anything else is returned unchanged on the first occurrence.
type Gate struct {
	Next Summarizer
	// InitialInterval is the first backoff wait. Zero selects 1s.
	InitialInterval time.Duration
	// MaxInterval caps a single wait. Zero selects 60s.
	MaxInterval time.Duration
	// OnRetry, when set, observes every rate-limited attempt before waiting.
	OnRetry func(err error, wait time.Duration)
}

// Summarize calls the wrapped Summarizer under the gate's policy.
func (g *Gate) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	op := func() (string, error) {
		out, err := g.Next.Summarize(ctx, prompt, maxTokens)
		if err == nil {
			return out, nil
		}
		classified := Classify(err)
		if errors.Is(classified, ErrRateLimited) {
			return "", classified
		}
		return "", backoff.Permanent(classified)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(g.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(g.notify),
	)
}

func (g *Gate) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	if g.InitialInterval > 0 {
		b.InitialInterval = g.InitialInterval
	}
	b.MaxInterval = 60 * time.Second
	if g.MaxInterval > 0 {
		b.MaxInterval = g.MaxInterval
	}
	b.Multiplier = 2
	return b
}

func (g *Gate) notify(err error, wait time.Duration) {
	log.Warn().Err(err).Dur("wait", wait).Msg("rate limited; backing off")
	if g.OnRetry != nil {
		g.OnRetry(err, wait)
	}
}
