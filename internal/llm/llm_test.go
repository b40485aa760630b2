package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gosummarize/internal/cache"
)

// scripted returns the queued errors in order, then succeeds with "ok".
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "ok", nil
}

func fastGate(next Summarizer) *Gate {
	return &Gate{Next: next, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestGate_RetriesRateLimits(t *testing.T) {
	rl := &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}
	s := &scripted{errs: []error{rl, rl, rl}}
	retries := 0
	g := fastGate(s)
	g.OnRetry = func(err error, wait time.Duration) {
		retries++
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("retry observed non rate-limit error: %v", err)
		}
	}
	out, err := g.Summarize(context.Background(), "p", 256)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "ok" || s.calls != 4 || retries != 3 {
		t.Fatalf("out=%q calls=%d retries=%d", out, s.calls, retries)
	}
}

func TestGate_PromptTooLongIsNotRetried(t *testing.T) {
	cases := []error{
		&openai.APIError{HTTPStatusCode: 400, Code: "context_length_exceeded", Message: "too long"},
		&openai.APIError{HTTPStatusCode: 400, Message: "This model's maximum context length is 4097 tokens"},
		&PromptTooLongError{PromptTokens: 4000, MaxTokens: 256, Window: 4096},
	}
	for _, in := range cases {
		s := &scripted{errs: []error{in}}
		_, err := fastGate(s).Summarize(context.Background(), "p", 256)
		if !errors.Is(err, ErrPromptTooLong) {
			t.Fatalf("expected ErrPromptTooLong for %v, got %v", in, err)
		}
		if s.calls != 1 {
			t.Fatalf("prompt-too-long must not be retried; calls=%d", s.calls)
		}
	}
}

func TestGate_FatalErrorPropagates(t *testing.T) {
	fatal := &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}
	s := &scripted{errs: []error{fatal}}
	_, err := fastGate(s).Summarize(context.Background(), "p", 256)
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr != fatal {
		t.Fatalf("expected original error, got %v", err)
	}
	if errors.Is(err, ErrPromptTooLong) || errors.Is(err, ErrRateLimited) {
		t.Fatalf("fatal error misclassified: %v", err)
	}
	if s.calls != 1 {
		t.Fatalf("calls=%d, want 1", s.calls)
	}
}

func TestGate_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := SummarizerFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return "", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("slow down")}
	})
	_, err := fastGate(next).Summarize(ctx, "p", 256)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("nil stays nil")
	}
	plain := errors.New("boom")
	if Classify(plain) != plain {
		t.Fatal("unknown errors are returned unchanged")
	}
	if !errors.Is(Classify(&openai.RequestError{HTTPStatusCode: 429, Err: errors.New("x")}), ErrRateLimited) {
		t.Fatal("429 request error should be rate limited")
	}
	if got := (&PromptTooLongError{PromptTokens: 10, MaxTokens: 5, Window: 12}).Error(); got != "prompt too long: 10 + 5 > 12" {
		t.Fatalf("message = %q", got)
	}
}

func stubChatServer(t *testing.T, handle func(req openai.ChatCompletionRequest) (int, any)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		status, body := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatSummarizer_RequestShape(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := stubChatServer(t, func(req openai.ChatCompletionRequest) (int, any) {
		got = req
		return http.StatusOK, map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "  Adds two numbers.\n"}}},
		}
	})
	s := &ChatSummarizer{Client: NewOpenAIProvider("test", srv.URL+"/v1", nil), Model: "test-model"}
	out, err := s.Summarize(context.Background(), "Describe this", 512)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "Adds two numbers." {
		t.Fatalf("out = %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 512 || len(got.Messages) != 1 || got.Messages[0].Content != "Describe this" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Stop) != 1 || got.Stop[0] != "\n\n" {
		t.Fatalf("stop = %v", got.Stop)
	}
}

func TestChatSummarizer_ContextLengthThroughGate(t *testing.T) {
	calls := 0
	srv := stubChatServer(t, func(req openai.ChatCompletionRequest) (int, any) {
		calls++
		return http.StatusBadRequest, map[string]any{"error": map[string]any{
			"message": "This model's maximum context length is 4097 tokens.",
			"type":    "invalid_request_error",
			"code":    "context_length_exceeded",
		}}
	})
	s := &ChatSummarizer{Client: NewOpenAIProvider("test", srv.URL+"/v1", nil), Model: "test-model"}
	_, err := fastGate(s).Summarize(context.Background(), "huge", 256)
	if !errors.Is(err, ErrPromptTooLong) {
		t.Fatalf("expected ErrPromptTooLong, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestCachingSummarizer(t *testing.T) {
	s := &scripted{}
	c := &CachingSummarizer{Next: s, Cache: &cache.LLMCache{Dir: t.TempDir()}, Model: "m"}
	for i := 0; i < 3; i++ {
		out, err := c.Summarize(context.Background(), "same prompt", 256)
		if err != nil || out != "ok" {
			t.Fatalf("Summarize: %q %v", out, err)
		}
	}
	if s.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", s.calls)
	}
	if _, err := c.Summarize(context.Background(), "same prompt", 512); err != nil || s.calls != 2 {
		t.Fatalf("different output length must miss the cache: calls=%d err=%v", s.calls, err)
	}

	only := &CachingSummarizer{Next: s, Cache: c.Cache, Model: "m", CacheOnly: true}
	if _, err := only.Summarize(context.Background(), "other prompt", 256); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}
