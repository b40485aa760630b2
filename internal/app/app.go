// Package app wires configuration, inputs, the text service and the summary
// store into one summarization run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/budget"
	"github.com/hyperifyio/gosummarize/internal/cache"
	"github.com/hyperifyio/gosummarize/internal/callgraph"
	"github.com/hyperifyio/gosummarize/internal/estimate"
	"github.com/hyperifyio/gosummarize/internal/llm"
	"github.com/hyperifyio/gosummarize/internal/run"
	"github.com/hyperifyio/gosummarize/internal/store"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

type App struct {
	cfg Config
	out io.Writer
	ai  llm.Client
}

// Option customizes an App.
type Option func(*App)

// WithOutput sends user-facing reports to w instead of stdout.
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// WithClient replaces the OpenAI-compatible client built from the config.
func WithClient(c llm.Client) Option { return func(a *App) { a.ai = c } }

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged stale completions")
			}
		}
		if cfg.CacheMaxBytes > 0 || cfg.CacheMaxCount > 0 {
			if n, err := cache.EnforceLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxCount); err != nil {
				log.Warn().Err(err).Msg("cache eviction failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("evicted completions over limit")
			}
		}
	}
	if cfg.DryRun || cfg.PrintTree {
		return a, nil
	}

	if a.ai == nil {
		a.ai = llm.NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLMBaseURL, newLLMHTTPClient())
	}
	// Preflight is best-effort: the first summarization surfaces real failures.
	if lister, ok := a.ai.(llm.ModelLister); ok {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		models, err := lister.ListModels(pctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("LLM model list failed; continuing")
		case len(models.Models) == 0:
			log.Warn().Msg("LLM returned zero models")
		default:
			log.Info().Int("count", len(models.Models)).Msg("LLM models available")
		}
	}
	return a, nil
}

// Run executes the configured mode. A live run that stops on a function it
// cannot summarize returns an error wrapping *summarize.AbandonedError after
// reporting; every summary written before that point stays on disk.
func (a *App) Run(ctx context.Context) error {
	plan, err := a.loadPlan()
	if err != nil {
		return err
	}
	if a.cfg.PrintTree {
		return a.printTree(plan)
	}
	if a.cfg.DryRun {
		return a.dryRun(ctx, plan)
	}
	return a.live(ctx, plan)
}

func (a *App) loadPlan() (*run.Plan, error) {
	g, err := callgraph.LoadGraph(a.cfg.CallGraphFile())
	if err != nil {
		return nil, err
	}
	d, err := callgraph.LoadDecompilations(a.cfg.DecompilationsFile())
	if err != nil {
		return nil, err
	}
	plan, err := run.Prepare(g, d, a.cfg.Function)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("functions", len(plan.Order)).Str("root", a.cfg.Function).Msg("scheduled")
	return plan, nil
}

func (a *App) printTree(plan *run.Plan) error {
	roots := []string{a.cfg.Function}
	if a.cfg.Function == "" {
		roots = callgraph.Roots(plan.Graph)
	}
	for _, root := range roots {
		if err := callgraph.PrintTree(a.out, plan.Graph, root); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) contextTokens() int {
	if a.cfg.ContextTokens > 0 {
		return a.cfg.ContextTokens
	}
	return budget.ModelContextTokens(a.cfg.LLMModel)
}

func (a *App) priceCentsPerK() float64 {
	if a.cfg.PriceCentsPerK > 0 {
		return a.cfg.PriceCentsPerK
	}
	return budget.PriceCentsPerK(a.cfg.LLMModel)
}

func (a *App) dryRun(ctx context.Context, plan *run.Plan) error {
	rep, err := estimate.Estimate(ctx, plan, estimate.Options{
		Tokenizer:      budget.TokenizerForModel(a.cfg.LLMModel),
		Window:         a.contextTokens(),
		MaxLines:       a.cfg.MaxLines,
		PriceCentsPerK: a.priceCentsPerK(),
	})
	if err != nil {
		return fmt.Errorf("estimate: %w", err)
	}
	_, err = io.WriteString(a.out, rep.Render())
	return err
}

// summarizer builds the live completion stack: cache, then rate-limit gate,
// then the chat model.
func (a *App) summarizer() llm.Summarizer {
	chat := &llm.ChatSummarizer{Client: a.ai, Model: a.cfg.LLMModel}
	var next llm.Summarizer = &llm.Gate{Next: chat}
	if a.cfg.CacheDir != "" {
		next = &llm.CachingSummarizer{
			Next:      next,
			Cache:     &cache.LLMCache{Dir: a.cfg.CacheDir, StrictPerms: a.cfg.CacheStrictPerms},
			Model:     a.cfg.LLMModel,
			CacheOnly: a.cfg.LLMCacheOnly,
		}
	}
	return next
}

func (a *App) live(ctx context.Context, plan *run.Plan) (err error) {
	outPath := a.cfg.OutputFile()
	st, err := store.Open(ctx, a.cfg.StoreDriver, outPath, a.cfg.RunID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close summaries: %w", cerr)
		}
	}()

	sum := &summarize.Summarizer{LLM: a.summarizer(), MaxLines: a.cfg.MaxLines}
	outcome, err := run.Drive(ctx, plan, sum, st, func(p run.Progress) {
		ev := log.Info().Int("done", p.Done).Int("total", p.Total).Str("function", p.Result.Name)
		if a.cfg.Verbose {
			ev = ev.Int("lines", plan.Decomps.LineCount(p.Result.Name)).
				Strs("callees", plan.Graph[p.Result.Name]).
				Str("summary", p.Result.Summary)
		}
		ev.Msg("summarized")
	})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	fmt.Fprintf(a.out, "Wrote %d summaries to %s\n", outcome.Written, outPath)
	if outcome.Abandoned == nil {
		fmt.Fprintf(a.out, "Summarized %d/%d functions.\n", outcome.Summarized, outcome.Scheduled)
	}
	if outcome.Abandoned != nil {
		ab := outcome.Abandoned
		fmt.Fprintf(a.out, "Stopped after summarizing %d/%d functions.\n", outcome.Summarized, outcome.Scheduled)
		fmt.Fprintf(a.out, "Failed function: %s with %d callees and %d lines\n", ab.Function, ab.Callees, ab.Lines)
		return fmt.Errorf("run stopped early: %w", ab)
	}

	summaries, err := st.Load(ctx)
	if err != nil {
		return err
	}
	if a.cfg.Function != "" {
		fmt.Fprintf(a.out, "%s: %s\n", a.cfg.Function, summaries[a.cfg.Function])
	}
	if a.cfg.OutputPDFPath != "" {
		records := make([]store.Record, 0, len(plan.Order))
		for _, name := range plan.Order {
			records = append(records, store.Record{Name: name, Summary: summaries[name]})
		}
		title := "Function summaries"
		if a.cfg.Function != "" {
			title += ": " + a.cfg.Function
		}
		pdfPath := a.cfg.resolve(a.cfg.OutputPDFPath)
		if err := WriteSummariesPDF(pdfPath, title, records); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("out", pdfPath).Msg("wrote PDF")
	}
	return nil
}

// IsAbandoned reports whether err means the run stopped early on a function
// that could not be summarized.
func IsAbandoned(err error) bool {
	var ab *summarize.AbandonedError
	return errors.As(err, &ab)
}
