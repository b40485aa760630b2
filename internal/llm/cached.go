package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/cache"
)

// CachingSummarizer serves repeated prompts from an on-disk cache. Only
// successful completions are stored, so failures are always retried.
type CachingSummarizer struct {
	Next  Summarizer
	Cache *cache.LLMCache
	Model string
	// CacheOnly, when true, fails on a cache miss instead of calling Next.
	CacheOnly bool
}

type cachedCompletion struct {
	Completion string `json:"completion"`
}

// ErrCacheMiss is returned in cache-only mode when no entry exists.
var ErrCacheMiss = errors.New("completion not in cache")

func (s *CachingSummarizer) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	key := cache.KeyFrom(s.Model, maxTokens, prompt)
	if s.Cache != nil {
		if raw, ok, err := s.Cache.Get(ctx, key); err != nil {
			log.Debug().Err(err).Msg("completion cache read failed")
		} else if ok {
			var c cachedCompletion
			if err := json.Unmarshal(raw, &c); err == nil && strings.TrimSpace(c.Completion) != "" {
				return c.Completion, nil
			}
		}
	}
	if s.CacheOnly {
		return "", ErrCacheMiss
	}
	out, err := s.Next.Summarize(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	if s.Cache != nil && strings.TrimSpace(out) != "" {
		payload, _ := json.Marshal(cachedCompletion{Completion: out})
		if err := s.Cache.Save(ctx, key, payload); err != nil {
			log.Debug().Err(err).Msg("completion cache write failed")
		}
	}
	return out, nil
}
