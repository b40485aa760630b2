// Package run drives the bottom-up summarization of a call graph: it walks
// the dependency order, skips functions that already have a summary, and
// persists every new summary before producing the next one.
package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/callgraph"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

var (
	// ErrStreamDone is returned by Next once every scheduled function has a
	// summary.
	ErrStreamDone = errors.New("all scheduled functions summarized")
	// ErrStreamConsumed is returned when Next is called after the stream has
	// already reported how it ended.
	ErrStreamConsumed = errors.New("summary stream already consumed")
)

// Plan is the read-only input of a run.
type Plan struct {
	Graph   callgraph.Graph
	Decomps callgraph.Decompilations
	// Order lists every node of Graph, callees before callers.
	Order []string
	// Missing lists functions pruned for lack of a decompilation.
	Missing []string
}

// Prepare prunes functions without decompilations, optionally reduces the
// graph to root and its transitive callees, and schedules the result.
func Prepare(g callgraph.Graph, d callgraph.Decompilations, root string) (*Plan, error) {
	pruned, missing := callgraph.Prune(g, d)
	if len(missing) > 0 {
		log.Warn().Int("count", len(missing)).Strs("functions", missing).Msg("no decompilation; removed from call graph")
	}
	if root != "" {
		sub, err := callgraph.Subgraph(pruned, root)
		if err != nil {
			return nil, err
		}
		pruned = sub
	}
	order, err := callgraph.Order(pruned)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return &Plan{Graph: pruned, Decomps: d, Order: order, Missing: missing}, nil
}

// Result is one newly produced summary.
type Result struct {
	Name    string
	Summary string
}

// Stream yields the summaries of a plan one at a time, in dependency order.
// It is finite and cannot be restarted: once Next has returned an error, every
// later call returns ErrStreamConsumed.
type Stream struct {
	plan  *Plan
	sum   *summarize.Summarizer
	known map[string]string
	pos   int
	err   error
}

// NewStream prepares a stream over plan. Functions present in existing are
// skipped and their summaries serve as context for their callers.
func NewStream(plan *Plan, sum *summarize.Summarizer, existing map[string]string) *Stream {
	known := make(map[string]string, len(existing)+len(plan.Order))
	for k, v := range existing {
		known[k] = v
	}
	return &Stream{plan: plan, sum: sum, known: known}
}

// Remaining reports how many scheduled functions still lack a summary.
func (s *Stream) Remaining() int {
	n := 0
	for _, name := range s.plan.Order[s.pos:] {
		if _, ok := s.known[name]; !ok {
			n++
		}
	}
	return n
}

// Next summarizes the next function without a summary. It returns
// ErrStreamDone at the end of the order, a *summarize.AbandonedError when a
// function cannot be summarized, or the primitive's error on failure.
func (s *Stream) Next(ctx context.Context) (Result, error) {
	if s.err != nil {
		return Result{}, ErrStreamConsumed
	}
	for s.pos < len(s.plan.Order) {
		name := s.plan.Order[s.pos]
		if _, ok := s.known[name]; ok {
			s.pos++
			continue
		}
		if err := ctx.Err(); err != nil {
			s.err = err
			return Result{}, err
		}
		code := s.plan.Decomps.Code(name)
		summary, err := s.sum.Function(ctx, name, code, s.known, s.plan.Graph[name])
		if err != nil {
			s.err = err
			return Result{}, err
		}
		s.known[name] = summary
		s.pos++
		return Result{Name: name, Summary: summary}, nil
	}
	s.err = ErrStreamDone
	return Result{}, s.err
}
