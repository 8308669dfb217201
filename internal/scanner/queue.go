package scanner

import "github.com/StinkyLord/binary-sbom-builder/internal/model"

// Queue is the FIFO of pending scan contexts. Extractors push to it while
// the scanner is draining it, so callers must re-check Len after every Pop.
type Queue struct {
	items []model.Context
}

// NewQueue returns a queue holding ctxs in order.
func NewQueue(ctxs ...model.Context) *Queue {
	q := &Queue{}
	for _, c := range ctxs {
		q.Push(c)
	}
	return q
}

// Push appends ctx to the back of the queue.
func (q *Queue) Push(ctx model.Context) {
	// The queue owns its copy of ExtractPaths; Normalize rewrites it.
	ctx.ExtractPaths = append([]string(nil), ctx.ExtractPaths...)
	q.items = append(q.items, ctx)
}

// Pop removes and returns the front context.
func (q *Queue) Pop() (model.Context, bool) {
	if len(q.items) == 0 {
		return model.Context{}, false
	}
	ctx := q.items[0]
	q.items[0] = model.Context{}
	q.items = q.items[1:]
	return ctx, true
}

// Len is the number of contexts still pending.
func (q *Queue) Len() int { return len(q.items) }
