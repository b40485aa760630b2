package run

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperifyio/gosummarize/internal/callgraph"
	"github.com/hyperifyio/gosummarize/internal/llm"
	"github.com/hyperifyio/gosummarize/internal/store"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

// scriptedLLM answers by the function name found in the prompt's code block.
type scriptedLLM struct {
	answers map[string]string
	prompts []string
}

func (s *scriptedLLM) Summarize(_ context.Context, prompt string, _ int) (string, error) {
	s.prompts = append(s.prompts, prompt)
	for marker, answer := range s.answers {
		if strings.Contains(prompt, marker) {
			return answer, nil
		}
	}
	return "", &llm.PromptTooLongError{Message: "unscripted prompt"}
}

func abPlan(t *testing.T) *Plan {
	t.Helper()
	g := callgraph.Graph{"a": {"b"}, "b": {}}
	d := callgraph.Decompilations{"a": "int a() { return b(); }", "b": "int b() { return 0; }"}
	plan, err := Prepare(g, d, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return plan
}

func abLLM() *scriptedLLM {
	return &scriptedLLM{answers: map[string]string{
		"int a()": "Calls b and returns its result.",
		"int b()": "Returns zero.",
	}}
}

func TestDrive_WritesCalleesFirst(t *testing.T) {
	ctx := context.Background()
	plan := abPlan(t)
	fake := abLLM()
	path := filepath.Join(t.TempDir(), "summaries.jsonl")
	st, err := store.OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	var seen []Progress
	out, err := Drive(ctx, plan, &summarize.Summarizer{LLM: fake}, st, func(p Progress) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	_ = st.Close()
	if !out.Complete() || out.Written != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	recs, _ := store.ReadJSONL(path)
	want := []store.Record{{Name: "b", Summary: "Returns zero."}, {Name: "a", Summary: "Calls b and returns its result."}}
	if !reflect.DeepEqual(recs, want) {
		t.Fatalf("records = %v", recs)
	}
	if !strings.Contains(fake.prompts[1], "b: Returns zero.\n") {
		t.Fatalf("caller prompt lacks callee summary:\n%s", fake.prompts[1])
	}
	if len(seen) != 2 || seen[1].Done != 2 || seen[1].Total != 2 || seen[0].Result.Name != "b" {
		t.Fatalf("progress = %+v", seen)
	}
}

func TestDrive_ResumesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	plan := abPlan(t)
	path := filepath.Join(t.TempDir(), "summaries.jsonl")
	st, err := store.OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Append(ctx, "b", "Returns zero."); err != nil {
		t.Fatal(err)
	}
	fake := abLLM()
	out, err := Drive(ctx, plan, &summarize.Summarizer{LLM: fake}, st, nil)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	_ = st.Close()
	if len(fake.prompts) != 1 || !strings.Contains(fake.prompts[0], "int a()") {
		t.Fatalf("expected only a to be summarized, prompts = %q", fake.prompts)
	}
	if out.Written != 1 || out.Summarized != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	recs, _ := store.ReadJSONL(path)
	if len(recs) != 2 || recs[0].Name != "b" || recs[1].Name != "a" {
		t.Fatalf("records = %v", recs)
	}
}

func TestDrive_ResumedEqualsUninterrupted(t *testing.T) {
	ctx := context.Background()
	g := callgraph.Graph{"main": {"parse", "eval"}, "parse": {"lex"}, "eval": {"lex"}, "lex": {}}
	d := callgraph.Decompilations{
		"main":  "void main() { eval(parse()); }",
		"parse": "node parse() { lex(); }",
		"eval":  "int eval() { lex(); }",
		"lex":   "tok lex() {}",
	}
	answers := map[string]string{
		"void main()":  "Runs the program.",
		"node parse()": "Parses tokens.",
		"int eval()":   "Evaluates a tree.",
		"tok lex()":    "Reads one token.",
	}
	plan, err := Prepare(g, d, "")
	if err != nil {
		t.Fatal(err)
	}

	full := store.NewMemory()
	if _, err := Drive(ctx, plan, &summarize.Summarizer{LLM: &scriptedLLM{answers: answers}}, full, nil); err != nil {
		t.Fatal(err)
	}

	// interrupt after two summaries, then resume into the same store
	partial := store.NewMemory()
	ctx2, cancel := context.WithCancel(ctx)
	_, err = Drive(ctx2, plan, &summarize.Summarizer{LLM: &scriptedLLM{answers: answers}}, partial, func(p Progress) {
		if p.Done == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, err := Drive(ctx, plan, &summarize.Summarizer{LLM: &scriptedLLM{answers: answers}}, partial, nil); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(full.Records(), partial.Records()) {
		t.Fatalf("resumed = %v\nfull = %v", partial.Records(), full.Records())
	}
}

func TestDrive_StopsOnAbandonedFunction(t *testing.T) {
	ctx := context.Background()
	g := callgraph.Graph{"a": {"b"}, "b": {}, "c": {}}
	d := callgraph.Decompilations{"a": "int a() {}", "b": "int b() {}", "c": "int c() {}"}
	plan, err := Prepare(g, d, "")
	if err != nil {
		t.Fatal(err)
	}
	// b is never answered, so every attempt overflows
	fake := &scriptedLLM{answers: map[string]string{"int a()": "A.", "int c()": "C."}}
	st := store.NewMemory()
	out, err := Drive(ctx, plan, &summarize.Summarizer{LLM: fake}, st, nil)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if out.Abandoned == nil || out.Abandoned.Function != "b" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Complete() || out.Written != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	for _, p := range fake.prompts {
		if strings.Contains(p, "int a()") || strings.Contains(p, "int c()") {
			t.Fatalf("run continued past the abandoned function: %q", p)
		}
	}
}

func TestStream_IsNotRestartable(t *testing.T) {
	ctx := context.Background()
	stream := NewStream(abPlan(t), &summarize.Summarizer{LLM: abLLM()}, map[string]string{"b": "x"})
	if stream.Remaining() != 1 {
		t.Fatalf("Remaining = %d", stream.Remaining())
	}
	res, err := stream.Next(ctx)
	if err != nil || res.Name != "a" {
		t.Fatalf("Next = %+v, %v", res, err)
	}
	if _, err := stream.Next(ctx); !errors.Is(err, ErrStreamDone) {
		t.Fatalf("expected ErrStreamDone, got %v", err)
	}
	if _, err := stream.Next(ctx); !errors.Is(err, ErrStreamConsumed) {
		t.Fatalf("expected ErrStreamConsumed, got %v", err)
	}
}

func TestPrepare_Subgraph(t *testing.T) {
	g := callgraph.Graph{"a": {"b", "gone"}, "b": {}, "c": {"b"}, "gone": {}}
	d := callgraph.Decompilations{"a": "x", "b": "y", "c": "z"}
	plan, err := Prepare(g, d, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.Order, []string{"b", "a"}) {
		t.Fatalf("order = %v", plan.Order)
	}
	if !reflect.DeepEqual(plan.Missing, []string{"gone"}) {
		t.Fatalf("missing = %v", plan.Missing)
	}
	if _, err := Prepare(g, d, "nope"); !errors.Is(err, callgraph.ErrUnknownRoot) {
		t.Fatalf("expected ErrUnknownRoot, got %v", err)
	}
}
