package dispatch

import (
	"context"
	"math"

	"jira-mcp-server/internal/catalog"
)

// Walker traverses a paginated operation one page at a time. Page fetches
// are strictly sequential: the cursor from page N feeds page N+1. A caller
// that persisted a cursor from an earlier walk resumes by passing it in the
// argument bag (the offset or token parameter the descriptor names). A
// Walker is not safe for concurrent use.
type Walker struct {
	d         *Dispatcher
	desc      *catalog.Descriptor
	args      map[string]any
	pageLimit int

	pages     int
	done      bool
	offset    int
	pageSize  int
	lastToken string
	started   bool
}

// Walk prepares a pagination walk. Registry resolution happens here so an
// unknown tool fails before any network traffic. pageLimit <= 0 applies
// the dispatcher's configured cap.
func (d *Dispatcher) Walk(toolID string, args map[string]any, pageLimit int) (*Walker, error) {
	desc, err := d.registry.Resolve(toolID)
	if err != nil {
		return nil, notFoundFailure(toolID)
	}
	if pageLimit <= 0 {
		pageLimit = d.maxPages
	}

	// Copy the bag: the walker rewrites cursor parameters between fetches
	// and must not mutate the caller's map.
	own := make(map[string]any, len(args)+2)
	for k, v := range args {
		own[k] = v
	}

	w := &Walker{
		d:         d,
		desc:      desc,
		args:      own,
		pageLimit: pageLimit,
		pageSize:  d.pageSize,
	}

	if pg := desc.Pagination; pg != nil {
		switch pg.Mode {
		case catalog.PaginateOffset:
			if v, ok := intArg(args[pg.MaxResultsParam]); ok && v > 0 {
				w.pageSize = v
			}
			if v, ok := intArg(args[pg.StartAtParam]); ok && v >= 0 {
				w.offset = v
			}
		case catalog.PaginateToken:
			// A caller-persisted continuation token resumes the walk where
			// the previous one stopped.
			if tok, ok := args[pg.TokenParam].(string); ok && tok != "" {
				w.lastToken = tok
				w.started = true
			}
		}
	}

	return w, nil
}

// Next fetches the next page. It returns (nil, nil) when the walk is
// exhausted. A page failure aborts the walk; pages already yielded stand.
func (w *Walker) Next(ctx context.Context) (*Envelope, error) {
	if w.done {
		return nil, nil
	}

	pg := w.desc.Pagination
	if pg == nil {
		// Not a paginated operation: a walk degenerates to one call.
		w.done = true
		return w.d.Invoke(ctx, w.desc.Name, w.args)
	}

	if w.pages >= w.pageLimit {
		w.done = true
		return nil, nil
	}

	switch pg.Mode {
	case catalog.PaginateOffset:
		w.args[pg.StartAtParam] = w.offset
		w.args[pg.MaxResultsParam] = w.pageSize
	case catalog.PaginateToken:
		if w.started {
			w.args[pg.TokenParam] = w.lastToken
		} else {
			delete(w.args, pg.TokenParam)
		}
	}

	log := w.d.logger.WithCorrelationId(shortID())
	env, err := w.d.invokeDescriptor(ctx, log, w.desc, w.args)
	if err != nil {
		w.done = true
		return nil, err
	}
	w.pages++
	w.started = true

	switch pg.Mode {
	case catalog.PaginateOffset:
		count := len(pageItems(env, pg.ItemsField))
		w.offset += count

		// Exhausted when the page came back short, the total is reached,
		// or the response says it is the last page.
		if count < w.pageSize || count == 0 {
			w.done = true
		}
		if v, ok := env.Field(pg.IsLastField); ok && pg.IsLastField != "" {
			if last, ok := v.(bool); ok && last {
				w.done = true
			}
		}
		if v, ok := env.Field(pg.TotalField); ok && pg.TotalField != "" {
			if total, ok := floatValue(v); ok && float64(w.offset) >= total {
				w.done = true
			}
		}

	case catalog.PaginateToken:
		token := ""
		if v, ok := env.Field(pg.TokenField); ok {
			token, _ = v.(string)
		}
		if token == "" {
			w.done = true
		} else if token == w.lastToken && w.pages > 1 {
			// A cursor that does not advance would loop forever.
			w.done = true
			return nil, &Failure{
				Kind:    KindPagination,
				Detail:  DetailStalled,
				Message: "continuation token did not advance between pages",
			}
		}
		w.lastToken = token
	}

	return env, nil
}

// pageItems extracts the item list from a page body. An empty itemsField
// means the body itself is the array (e.g. user search).
func pageItems(env *Envelope, itemsField string) []any {
	if itemsField == "" {
		items, _ := env.Body.([]any)
		return items
	}
	v, ok := env.Field(itemsField)
	if !ok {
		return nil
	}
	items, _ := v.([]any)
	return items
}

// Items exposes a page's item list for callers merging pages.
func (w *Walker) Items(env *Envelope) []any {
	if w.desc.Pagination == nil {
		return nil
	}
	return pageItems(env, w.desc.Pagination.ItemsField)
}

func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
