package fetch

import (
    "context"
    "sync"
    "time"
)

// Page is one slice of a paginated upstream result set. Total is the
// upstream-reported size of the full set, not of this page.
type Page[T any] struct {
    Items []T
    Total int
}

// PageFunc retrieves one page starting at the given offset. It must be
// idempotent; the fetcher never retries a failed page on its own.
type PageFunc[T any] func(ctx context.Context, startAt, pageSize int) (Page[T], error)

type Options struct {
    PageSize             int
    MaxConcurrentBatches int
    BatchDelay           time.Duration
}

func (o Options) withDefaults() Options {
    if o.PageSize <= 0 { o.PageSize = 50 }
    if o.MaxConcurrentBatches <= 0 { o.MaxConcurrentBatches = 4 }
    if o.BatchDelay < 0 { o.BatchDelay = 0 }
    return o
}

// AllPages retrieves every page of a result set. The first request goes out
// alone to learn the total; the remaining pages are fetched in consecutive
// batches of MaxConcurrentBatches concurrent requests, sleeping BatchDelay
// between batches so bursty traffic stays under the upstream rate limit.
// Each in-flight request writes into its own preallocated slot and pages are
// joined in offset order, so completion order never changes the output.
// A single page failure aborts the whole call; retry policy belongs to the
// caller. Short pages are not an error, the combined result is just shorter
// than the reported total.
func AllPages[T any](ctx context.Context, fn PageFunc[T], opts Options) ([]T, error) {
    opts = opts.withDefaults()
    first, err := fn(ctx, 0, opts.PageSize)
    if err != nil { return nil, err }
    if len(first.Items) >= first.Total || len(first.Items) < opts.PageSize {
        return first.Items, nil
    }

    remaining := (first.Total - opts.PageSize + opts.PageSize - 1) / opts.PageSize
    pages := make([][]T, remaining)
    var mu sync.Mutex
    var firstErr error
    for base := 0; base < remaining; base += opts.MaxConcurrentBatches {
        if err := ctx.Err(); err != nil { return nil, err }
        end := base + opts.MaxConcurrentBatches
        if end > remaining { end = remaining }
        var wg sync.WaitGroup
        for i := base; i < end; i++ {
            wg.Add(1)
            go func(i int) {
                defer wg.Done()
                p, err := fn(ctx, (i+1)*opts.PageSize, opts.PageSize)
                if err != nil {
                    mu.Lock()
                    if firstErr == nil { firstErr = err }
                    mu.Unlock()
                    return
                }
                pages[i] = p.Items
            }(i)
        }
        wg.Wait()
        if firstErr != nil { return nil, firstErr }
        if end < remaining && opts.BatchDelay > 0 { time.Sleep(opts.BatchDelay) }
    }

    out := make([]T, 0, first.Total)
    out = append(out, first.Items...)
    for _, p := range pages { out = append(out, p...) }
    return out, nil
}
