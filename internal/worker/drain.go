package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// DefaultBatchSize is how many events one drain pass claims when the caller
// does not override it.
const DefaultBatchSize = 5

// DrainSummary reports one drain pass.
type DrainSummary struct {
	Claimed   int      `json:"claimed"`
	Completed int      `json:"completed"`
	Released  int      `json:"released"`
	Failed    int      `json:"failed"`
	Reaped    int64    `json:"reaped"`
	Results   []Result `json:"results"`
}

// Drain reaps stale claims, claims up to batchSize pending events, and
// processes them. Events sharing a conversation run sequentially in claim
// order; distinct conversations run in parallel.
func (w *Worker) Drain(ctx context.Context, batchSize int) (*DrainSummary, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	reaped, err := w.store.ReapStaleClaims(ctx, w.staleAfter)
	if err != nil {
		log.Warn().Err(err).Msg("stale claim reaper failed")
	} else if reaped > 0 {
		log.Info().Int64("reaped", reaped).Msg("stale claims returned to pending")
	}

	events, err := w.store.ClaimEvents(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	summary := &DrainSummary{Claimed: len(events), Reaped: reaped, Results: []Result{}}
	if len(events) == 0 {
		return summary, nil
	}

	groups := make(map[string][]*bridge.QueuedEvent)
	var order []string
	for _, ev := range events {
		key := conversationKey(ev.TenantID, ev.Platform, ev.SenderID)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for _, key := range order {
		batch := groups[key]
		g.Go(func() error {
			for _, ev := range batch {
				res := w.Process(gctx, ev)
				mu.Lock()
				summary.Results = append(summary.Results, res)
				switch res.Status {
				case StatusCompleted:
					summary.Completed++
				case StatusReleased:
					summary.Released++
				case StatusFailed:
					summary.Failed++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	log.Info().
		Int("claimed", summary.Claimed).
		Int("completed", summary.Completed).
		Int("released", summary.Released).
		Int("failed", summary.Failed).
		Msg("drain pass finished")
	return summary, nil
}
