package jsonrpc

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"
)

// HandleBatch processes the items of a batch. Items run concurrently up to the
// configured limit; a failing item only affects its own response. The result
// holds one response per non-notification item, in input order.
func (d *Dispatcher) HandleBatch(ctx context.Context, items []json.RawMessage) []*Response {
	d.metrics.recordBatch(ctx, len(items))

	slots := make([]*Response, len(items))
	var g errgroup.Group
	limit := d.concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			slots[i] = d.HandleItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(slots))
	for _, resp := range slots {
		if resp != nil {
			out = append(out, resp)
		}
	}
	return out
}
