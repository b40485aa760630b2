// Package summarize turns one function's code, plus the summaries already
// known for its callees, into a one-sentence description. Functions too large
// for a single request are split into line blocks that are described in order
// and then combined.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/llm"
)

const (
	// DefaultMaxLines is the initial block size of the chunked fallback.
	DefaultMaxLines = 100
	// ShrinkStep is subtracted from the block size after each overflow.
	ShrinkStep = 10
	// MinLines is the smallest block size a strategy is tried with.
	MinLines = 10

	// SentenceTokens bounds one-sentence outputs.
	SentenceTokens = 256
	// ParagraphTokens bounds paragraph outputs of the Paragraph strategy.
	ParagraphTokens = 512
)

// Strategy selects how each block of a chunked function is described.
type Strategy int

const (
	// Paragraph describes each block in a paragraph ("long" strategy).
	Paragraph Strategy = iota
	// Sentence describes each block in one sentence ("short" strategy).
	Sentence
)

func (s Strategy) String() string {
	if s == Sentence {
		return "short"
	}
	return "long"
}

func (s Strategy) instruction() string {
	if s == Sentence {
		return "Describe what this code does in a single sentence:\n"
	}
	return "Describe what this code does in a paragraph:\n"
}

// MaxTokens is the output bound of one block description.
func (s Strategy) MaxTokens() int {
	if s == Sentence {
		return SentenceTokens
	}
	return ParagraphTokens
}

// AbandonedError reports a function that could not be summarized because every
// attempt overflowed the context window.
type AbandonedError struct {
	Function string
	Callees  int
	Lines    int
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("gave up on %s (%d callees, %d lines): prompt too long for every chunk size", e.Function, e.Callees, e.Lines)
}

func (e *AbandonedError) Unwrap() error { return llm.ErrPromptTooLong }

// Summarizer implements the direct attempt and the chunked fallbacks on top of
// a text-completion primitive. The primitive should already apply the service
// failure policy (see llm.Gate).
type Summarizer struct {
	LLM llm.Summarizer
	// MaxLines is the initial block size. Zero selects DefaultMaxLines.
	MaxLines int
}

// Function summarizes the normalized code of name. known holds the summaries
// produced so far and callees lists the functions name calls. When no
// attempt fits the context window it returns an *AbandonedError; any other
// error from the primitive is returned as is.
func (s *Summarizer) Function(ctx context.Context, name, code string, known map[string]string, callees []string) (string, error) {
	logger := log.With().Str("function", name).Logger()

	summary, err := s.LLM.Summarize(ctx, DirectPrompt(code, known, callees), SentenceTokens)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, llm.ErrPromptTooLong) {
		return "", err
	}

	lines := strings.Split(strings.TrimSuffix(code, "\n"), "\n")
	base := calleeContext(known, callees)
	for _, strategy := range []Strategy{Paragraph, Sentence} {
		for n := s.maxLines(); ; n -= ShrinkStep {
			logger.Debug().Stringer("strategy", strategy).Int("max_lines", n).Msg("summarizing in chunks")
			summary, err := s.chunked(ctx, lines, base, n, strategy)
			if err == nil {
				return summary, nil
			}
			if !errors.Is(err, llm.ErrPromptTooLong) {
				return "", err
			}
			if n-ShrinkStep < MinLines {
				break
			}
		}
	}
	logger.Debug().Msg("all chunk sizes overflowed")
	return "", &AbandonedError{Function: name, Callees: len(callees), Lines: len(lines)}
}

func (s *Summarizer) maxLines() int {
	if s.MaxLines > 0 {
		return s.MaxLines
	}
	return DefaultMaxLines
}

// chunked describes lines in blocks of maxLines, each block seeing the
// descriptions of the blocks before it, then combines the descriptions.
func (s *Summarizer) chunked(ctx context.Context, lines []string, base string, maxLines int, strategy Strategy) (string, error) {
	parts := make([]string, 0, (len(lines)+maxLines-1)/maxLines)
	for i := 0; i < len(lines); i += maxLines {
		end := min(i+maxLines, len(lines))
		block := strings.Join(lines[i:end], "\n")
		part, err := s.LLM.Summarize(ctx, ChunkPrompt(base, parts, block, strategy), strategy.MaxTokens())
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return s.LLM.Summarize(ctx, CombinePrompt(parts), SentenceTokens)
}
