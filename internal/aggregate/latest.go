package aggregate

import (
	"context"

	"biztrack/internal/grouping"
	"biztrack/internal/log"
)

// LatestReceipts is FetchReceipts for views that switch filters quickly:
// a call cancels the one before it, and a superseded call returns ErrStale.
func (c *Coordinator) LatestReceipts(ctx context.Context, f grouping.Filter) (*Feed[ReceiptRow], error) {
	return latest(ctx, c, &c.receiptsTracker, "receipts", func(ctx context.Context) (*Feed[ReceiptRow], error) {
		return c.FetchReceipts(ctx, f)
	})
}

func (c *Coordinator) LatestJobs(ctx context.Context, f grouping.Filter) (*Feed[JobRow], error) {
	return latest(ctx, c, &c.jobsTracker, "jobs", func(ctx context.Context) (*Feed[JobRow], error) {
		return c.FetchJobs(ctx, f)
	})
}

func (c *Coordinator) LatestTripLogs(ctx context.Context, f grouping.Filter) (*Feed[TripLogRow], error) {
	return latest(ctx, c, &c.tripLogsTracker, "triplogs", func(ctx context.Context) (*Feed[TripLogRow], error) {
		return c.FetchTripLogs(ctx, f)
	})
}

func latest[R any](ctx context.Context, c *Coordinator, t *Tracker, entity string, fetch func(context.Context) (*Feed[R], error)) (*Feed[R], error) {
	gctx, gen := t.Begin(ctx)
	feed, err := fetch(gctx)
	if !t.Deliver(gen) {
		c.metrics.StaleDropped(entity)
		c.logger.DebugContext(ctx, "Dropping superseded fetch",
			log.FieldResource, entity,
			log.FieldGeneration, gen)
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}
	feed.Generation = gen
	return feed, nil
}
