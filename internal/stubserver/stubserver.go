// Package stubserver serves a deterministic OpenAI-compatible chat API for
// local end-to-end runs and tests. Replies are derived from a hash of the
// prompt, prompts that do not fit the configured window are rejected the way
// OpenAI rejects them, and rate limiting can be injected.
package stubserver

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gosummarize/internal/budget"
)

// Options configures the stub.
type Options struct {
	Model string
	// Window is the context size in tokens. Zero selects
	// budget.DefaultContextTokens.
	Window    int
	Tokenizer budget.Tokenizer
	// RateLimitEvery makes every n-th completion request fail with 429.
	// Zero disables injection.
	RateLimitEvery int
	// OnPrompt, when set, observes every completion prompt that was answered.
	OnPrompt func(prompt string, maxTokens int)
}

// Server is an http.Handler implementing /v1/models and
// /v1/chat/completions.
type Server struct {
	opts Options
	mux  *http.ServeMux

	mu       sync.Mutex
	requests int
}

func New(opts Options) *Server {
	if opts.Model == "" {
		opts.Model = "test-model"
	}
	if opts.Window <= 0 {
		opts.Window = budget.DefaultContextTokens
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = budget.CharTokenizer{}
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/models", s.models)
	s.mux.HandleFunc("/v1/chat/completions", s.completions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Requests reports how many completion requests were received.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Reply returns the completion the stub produces for prompt.
func Reply(prompt string) string {
	return fmt.Sprintf("Stub summary %08x.", crc32.ChecksumIEEE([]byte(prompt)))
}

func (s *Server) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": s.opts.Model, "object": "model"}},
	})
}

func (s *Server) completions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "", "invalid JSON body")
		return
	}

	s.mu.Lock()
	s.requests++
	n := s.requests
	s.mu.Unlock()
	if s.opts.RateLimitEvery > 0 && n%s.opts.RateLimitEvery == 0 {
		writeError(w, http.StatusTooManyRequests, "requests", "rate_limit_exceeded", "Rate limit reached for requests")
		return
	}

	var prompt string
	for _, m := range req.Messages {
		prompt += m.Content
	}
	promptTokens := s.opts.Tokenizer.CountTokens(prompt)
	if !budget.FitsInContext(s.opts.Window, req.MaxTokens, promptTokens) {
		log.Debug().Int("prompt_tokens", promptTokens).Int("max_tokens", req.MaxTokens).Msg("stub: context length exceeded")
		writeError(w, http.StatusBadRequest, "invalid_request_error", "context_length_exceeded", fmt.Sprintf(
			"This model's maximum context length is %d tokens. However, you requested %d tokens (%d in the messages, %d in the completion).",
			s.opts.Window, promptTokens+req.MaxTokens, promptTokens, req.MaxTokens))
		return
	}
	if s.opts.OnPrompt != nil {
		s.opts.OnPrompt(prompt, req.MaxTokens)
	}
	content := Reply(prompt)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-stub-%d", n),
		"object":  "chat.completion",
		"model":   s.opts.Model,
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}}},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": s.opts.Tokenizer.CountTokens(content),
			"total_tokens":      promptTokens + s.opts.Tokenizer.CountTokens(content),
		},
	})
}

func writeError(w http.ResponseWriter, status int, typ, code, message string) {
	body := map[string]any{"message": message, "type": typ}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
