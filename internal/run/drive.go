package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/store"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

// Progress is reported after every persisted summary.
type Progress struct {
	Done   int
	Total  int
	Result Result
}

// Outcome describes how a run ended.
type Outcome struct {
	// Scheduled is the number of functions in the plan.
	Scheduled int
	// Summarized counts scheduled functions that have a summary at the end,
	// including those loaded from the store.
	Summarized int
	// Written counts summaries produced and persisted by this run.
	Written int
	// Abandoned is set when the run stopped early on a function that could
	// not be summarized.
	Abandoned *summarize.AbandonedError
}

// Complete reports whether every scheduled function has a summary.
func (o Outcome) Complete() bool { return o.Abandoned == nil && o.Summarized == o.Scheduled }

// Drive loads what st already holds, then summarizes the rest of plan,
// appending each summary to st before computing the next. An abandoned
// function ends the run early with Outcome.Abandoned set and a nil error.
func Drive(ctx context.Context, plan *Plan, sum *summarize.Summarizer, st store.Store, progress func(Progress)) (Outcome, error) {
	existing, err := st.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load summaries: %w", err)
	}
	out := Outcome{Scheduled: len(plan.Order)}
	for _, name := range plan.Order {
		if _, ok := existing[name]; ok {
			out.Summarized++
		}
	}
	if out.Summarized > 0 {
		log.Info().Int("existing", out.Summarized).Int("scheduled", out.Scheduled).Msg("resuming from stored summaries")
	}

	stream := NewStream(plan, sum, existing)
	total := stream.Remaining()
	for {
		res, err := stream.Next(ctx)
		if errors.Is(err, ErrStreamDone) {
			return out, nil
		}
		var abandoned *summarize.AbandonedError
		if errors.As(err, &abandoned) {
			out.Abandoned = abandoned
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if err := st.Append(ctx, res.Name, res.Summary); err != nil {
			return out, fmt.Errorf("persist summary: %w", err)
		}
		out.Written++
		out.Summarized++
		if progress != nil {
			progress(Progress{Done: out.Written, Total: total, Result: res})
		}
	}
}
