package engine

import "context"

// Summary rolls up the dashboard totals. Pure read-aggregation over the
// store; there is no cached global to invalidate.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	return e.Store.SummaryTotals(ctx)
}
