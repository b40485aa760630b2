// Package estimate predicts the call volume, token volume and cost of a run
// without contacting the text service. It drives the same scheduling and
// chunking code as a live run against a local stand-in that enforces the
// context window with a local tokenizer.
package estimate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hyperifyio/gosummarize/internal/budget"
	"github.com/hyperifyio/gosummarize/internal/llm"
	"github.com/hyperifyio/gosummarize/internal/run"
	"github.com/hyperifyio/gosummarize/internal/store"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

// Canned outputs returned for sentence and paragraph requests.
const (
	ShortSummary = "This function checks a value in a given location and, if it meets a certain condition, calls a warning function; otherwise, it calls an error function."
	LongSummary  = "This code is responsible for validating and initializing an inflate stream. It checks if a given parameter is greater than a limit and calls a warning or error function depending on the result, allocates a block of memory of size param_2 and returns a pointer to it, sets the bits of a uint stored at a different memory address based on the value of a ushort at a specific memory address, checks if a given value is a known sRGB profile and calls a warning or error function depending on the value and parameters, and if valid, sets up the third parameter with a certain value, checks if a read function is valid and computes a CRC32 value for a given input if the parameter is not NULL before producing an error, and reads a specified memory location, checks if a window size is valid, calls a read function, computes a CRC32 value, and stores an error message corresponding to the given parameter."
)

// Simulator is a zero-network llm.Summarizer. A request fails with a
// *llm.PromptTooLongError when its prompt tokens plus maxTokens exceed
// Window, exactly as the live service would reject it.
type Simulator struct {
	// Tokenizer counts prompt tokens. Nil selects the GPT-2 encoding.
	Tokenizer budget.Tokenizer
	Window    int

	Calls           int
	PromptTokens    int
	GeneratedTokens int
}

func (s *Simulator) Summarize(_ context.Context, prompt string, maxTokens int) (string, error) {
	s.Calls++
	n := s.tokenizer().CountTokens(prompt)
	window := s.window()
	if !budget.FitsInContext(window, maxTokens, n) {
		return "", &llm.PromptTooLongError{PromptTokens: n, MaxTokens: maxTokens, Window: window}
	}
	s.PromptTokens += n
	out := canned(maxTokens)
	if out == "" {
		s.GeneratedTokens += maxTokens
		return strings.Repeat("x", maxTokens), nil
	}
	s.GeneratedTokens += s.tokenizer().CountTokens(out)
	return out, nil
}

func canned(maxTokens int) string {
	switch maxTokens {
	case summarize.SentenceTokens:
		return ShortSummary
	case summarize.ParagraphTokens:
		return LongSummary
	}
	return ""
}

func (s *Simulator) tokenizer() budget.Tokenizer {
	if s.Tokenizer == nil {
		s.Tokenizer = budget.TokenizerForModel("")
	}
	return s.Tokenizer
}

func (s *Simulator) window() int {
	if s.Window <= 0 {
		return budget.DefaultContextTokens
	}
	return s.Window
}

// Options configures an estimate.
type Options struct {
	// Tokenizer should match the model of the live run; see
	// budget.TokenizerForModel.
	Tokenizer      budget.Tokenizer
	Window         int
	MaxLines       int
	PriceCentsPerK float64
}

// Report is the outcome of a simulated run.
type Report struct {
	Scheduled       int
	Summarized      int
	Calls           int
	PromptTokens    int
	GeneratedTokens int
	CostDollars     float64
	// Abandoned names the first function the run would stop on, if any.
	Abandoned *summarize.AbandonedError
}

// Estimate simulates a full run of plan from an empty summary store.
func Estimate(ctx context.Context, plan *run.Plan, opts Options) (Report, error) {
	sim := &Simulator{Tokenizer: opts.Tokenizer, Window: opts.Window}
	sum := &summarize.Summarizer{LLM: sim, MaxLines: opts.MaxLines}
	out, err := run.Drive(ctx, plan, sum, store.NewMemory(), nil)
	if err != nil {
		return Report{}, err
	}
	price := opts.PriceCentsPerK
	if price <= 0 {
		price = budget.DefaultPriceCentsPerK
	}
	return Report{
		Scheduled:       out.Scheduled,
		Summarized:      out.Summarized,
		Calls:           sim.Calls,
		PromptTokens:    sim.PromptTokens,
		GeneratedTokens: sim.GeneratedTokens,
		CostDollars:     budget.CostDollars(sim.PromptTokens+sim.GeneratedTokens, price),
		Abandoned:       out.Abandoned,
	}, nil
}

// Render formats the report as a table, preceded by the abandonment
// diagnostics when the simulated run stopped early.
func (r Report) Render() string {
	var sb strings.Builder
	if r.Abandoned != nil {
		fmt.Fprintf(&sb, "Simulation stopped after summarizing %d/%d functions.\n", r.Summarized, r.Scheduled)
		fmt.Fprintf(&sb, "Failed function: %s with %d callees and %d lines\n", r.Abandoned.Function, r.Abandoned.Callees, r.Abandoned.Lines)
		sb.WriteString("Estimates reflect only the functions that were summarized.\n")
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("API usage estimates")
	tbl.AppendRow(table.Row{"Functions summarized", fmt.Sprintf("%s / %s", humanize.Comma(int64(r.Summarized)), humanize.Comma(int64(r.Scheduled)))})
	tbl.AppendRow(table.Row{"API calls", humanize.Comma(int64(r.Calls))})
	tbl.AppendRow(table.Row{"Prompt tokens", humanize.Comma(int64(r.PromptTokens))})
	tbl.AppendRow(table.Row{"Generated tokens", humanize.Comma(int64(r.GeneratedTokens))})
	tbl.AppendFooter(table.Row{"Estimated cost", fmt.Sprintf("$%.2f", r.CostDollars)})
	sb.WriteString(tbl.Render())
	sb.WriteString("\n")
	return sb.String()
}
