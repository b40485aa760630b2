package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Summarizer is the text-completion capability the scheduler depends on. A
// prompt that cannot fit the service's context window together with
// maxTokens of output fails with an error matching ErrPromptTooLong.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

var (
	// ErrPromptTooLong marks a request whose prompt plus requested output
	// exceeds the context window. Retrying the same prompt cannot succeed.
	ErrPromptTooLong = errors.New("prompt too long")
	// ErrRateLimited marks a throttled request. The Gate retries these.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyCompletion is returned when the service answers without a choice.
	ErrEmptyCompletion = errors.New("empty completion")
)

// PromptTooLongError carries the details of a context-window overflow when
// they are known. PromptTokens and Window are zero when the service did not
// report them.
type PromptTooLongError struct {
	PromptTokens int
	MaxTokens    int
	Window       int
	Message      string
}

func (e *PromptTooLongError) Error() string {
	if e.Window > 0 {
		return fmt.Sprintf("prompt too long: %d + %d > %d", e.PromptTokens, e.MaxTokens, e.Window)
	}
	if e.Message != "" {
		return "prompt too long: " + e.Message
	}
	return ErrPromptTooLong.Error()
}

func (e *PromptTooLongError) Is(target error) bool { return target == ErrPromptTooLong }

// ChatSummarizer sends each prompt as a single user message to a chat model.
type ChatSummarizer struct {
	Client      Client
	Model       string
	Temperature float32
}

// Summarize returns the trimmed text of the first choice. Service errors are
// returned unchanged; Classify maps them to the package sentinels.
func (s *ChatSummarizer) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if s.Client == nil || strings.TrimSpace(s.Model) == "" {
		return "", errors.New("chat summarizer not configured")
	}
	temp := s.Temperature
	if temp == 0 {
		temp = 0.7
	}
	req := openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temp,
		TopP:        1,
		N:           1,
		Stop:        []string{"\n\n"},
	}
	resp, err := s.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Classify maps a service error to ErrRateLimited or a *PromptTooLongError.
// Errors of any other kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPromptTooLong) || errors.Is(err, ErrRateLimited) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isContextLengthError(apiErr.Code, apiErr.Message) {
			return &PromptTooLongError{Message: apiErr.Message}
		}
		if apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
		}
		if reqErr.Err != nil && isContextLengthError(nil, reqErr.Err.Error()) {
			return &PromptTooLongError{Message: reqErr.Err.Error()}
		}
	}
	return err
}

func isContextLengthError(code any, message string) bool {
	if s, ok := code.(string); ok && s == "context_length_exceeded" {
		return true
	}
	return strings.Contains(strings.ToLower(message), "maximum context length")
}
