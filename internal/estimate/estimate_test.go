package estimate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperifyio/gosummarize/internal/budget"
	"github.com/hyperifyio/gosummarize/internal/callgraph"
	"github.com/hyperifyio/gosummarize/internal/llm"
	"github.com/hyperifyio/gosummarize/internal/run"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

func plan(t *testing.T, g callgraph.Graph, d callgraph.Decompilations) *run.Plan {
	t.Helper()
	p, err := run.Prepare(g, d, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return p
}

func TestSimulator_EnforcesWindow(t *testing.T) {
	sim := &Simulator{Tokenizer: budget.CharTokenizer{}, Window: 300}
	out, err := sim.Summarize(context.Background(), strings.Repeat("a", 40), summarize.SentenceTokens)
	if err != nil || out != ShortSummary {
		t.Fatalf("Summarize = %q, %v", out, err)
	}
	_, err = sim.Summarize(context.Background(), strings.Repeat("a", 400), summarize.SentenceTokens)
	var tooLong *llm.PromptTooLongError
	if !errors.As(err, &tooLong) || tooLong.PromptTokens != 100 || tooLong.Window != 300 {
		t.Fatalf("expected PromptTooLongError, got %v", err)
	}
	if sim.Calls != 2 || sim.PromptTokens != 10 {
		t.Fatalf("calls=%d prompt=%d", sim.Calls, sim.PromptTokens)
	}
	if out, _ := sim.Summarize(context.Background(), "a", 7); out != "xxxxxxx" {
		t.Fatalf("uncanned output = %q", out)
	}
}

func TestEstimate_DirectOnly(t *testing.T) {
	g := callgraph.Graph{"a": {"b"}, "b": {}}
	d := callgraph.Decompilations{"a": "int a() { return b(); }", "b": "int b() { return 0; }"}
	rep, err := Estimate(context.Background(), plan(t, g, d), Options{})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	tok := budget.TokenizerForModel("")
	wantPrompt := tok.CountTokens(summarize.DirectPrompt(d.Code("b"), map[string]string{}, nil)) +
		tok.CountTokens(summarize.DirectPrompt(d.Code("a"), map[string]string{"b": ShortSummary}, []string{"b"}))
	if rep.Calls != 2 || rep.Summarized != 2 || rep.Scheduled != 2 || rep.Abandoned != nil {
		t.Fatalf("report = %+v", rep)
	}
	if rep.PromptTokens != wantPrompt {
		t.Fatalf("prompt tokens = %d, want %d", rep.PromptTokens, wantPrompt)
	}
	if rep.GeneratedTokens != 2*tok.CountTokens(ShortSummary) {
		t.Fatalf("generated tokens = %d", rep.GeneratedTokens)
	}
	wantCost := budget.CostDollars(rep.PromptTokens+rep.GeneratedTokens, budget.DefaultPriceCentsPerK)
	if rep.CostDollars != wantCost {
		t.Fatalf("cost = %v, want %v", rep.CostDollars, wantCost)
	}
}

func TestEstimate_Reproducible(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("  v = v * 31 + data[i];\n")
	}
	g := callgraph.Graph{"main": {"big", "leaf"}, "big": {"leaf"}, "leaf": {}}
	d := callgraph.Decompilations{"main": "void main() { big(); leaf(); }", "big": sb.String(), "leaf": "void leaf() {}"}
	p := plan(t, g, d)
	first, err := Estimate(context.Background(), p, Options{Window: 2048})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := Estimate(context.Background(), p, Options{Window: 2048})
		if err != nil {
			t.Fatal(err)
		}
		if again.Calls != first.Calls || again.PromptTokens != first.PromptTokens || again.CostDollars != first.CostDollars {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
	if first.Calls <= 3 {
		t.Fatalf("expected chunked calls for big, got %d", first.Calls)
	}
}

func TestEstimate_ReportsAbandonment(t *testing.T) {
	g := callgraph.Graph{"a": {"b"}, "b": {}}
	d := callgraph.Decompilations{"a": "int a() { return b(); }", "b": "int b() {\n  return 0;\n}"}
	rep, err := Estimate(context.Background(), plan(t, g, d), Options{Window: 100})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if rep.Abandoned == nil || rep.Abandoned.Function != "b" || rep.Abandoned.Lines != 3 {
		t.Fatalf("report = %+v", rep)
	}
	// direct + ten long sizes + ten short sizes, each failing on its first block
	if rep.Calls != 21 || rep.Summarized != 0 || rep.PromptTokens != 0 {
		t.Fatalf("report = %+v", rep)
	}
	text := rep.Render()
	if !strings.Contains(text, "Failed function: b with 0 callees and 3 lines") || !strings.Contains(text, "0/2") {
		t.Fatalf("render:\n%s", text)
	}
}

func TestEstimate_CountsTokensLikeTheModel(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 180; i++ {
		fmt.Fprintf(&sb, "  uVar%d = *(uint *)(param_1 + 0x%x) & 0x%x;\n", i, i*4, i*7+3)
	}
	g := callgraph.Graph{"f": {}}
	d := callgraph.Decompilations{"f": sb.String()}
	p := plan(t, g, d)

	rough, err := Estimate(context.Background(), p, Options{Tokenizer: budget.CharTokenizer{}})
	if err != nil {
		t.Fatal(err)
	}
	if rough.Calls != 1 {
		t.Fatalf("character estimate: calls = %d, want a single direct call", rough.Calls)
	}
	// with GPT-2 byte-pair counts the direct prompt overflows the window
	bpe, err := Estimate(context.Background(), p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if bpe.Calls < 3 || bpe.Abandoned != nil || bpe.PromptTokens <= rough.PromptTokens {
		t.Fatalf("bpe report = %+v, char report = %+v", bpe, rough)
	}
}
