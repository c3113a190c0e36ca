package ingest

import (
	"context"
	"sync"

	"github.com/visionaree/visionaree-server/internal/splitter"
)

// runPool fans the windows out to a fixed number of workers. Completion
// order is not guaranteed; callers key results by segment start time. The
// first task error is returned after all workers drain, so one failure does
// not abandon in-flight segments.
func runPool(ctx context.Context, workers int, windows []splitter.Window, fn func(ctx context.Context, w splitter.Window) error) error {
	if workers < 1 {
		workers = 1
	}

	tasks := make(chan splitter.Window)

	var mu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range tasks {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, w); err != nil {
					recordErr(err)
				}
			}
		}()
	}

	// Submission order is segment time order.
dispatch:
	for _, w := range windows {
		select {
		case tasks <- w:
		case <-ctx.Done():
			recordErr(ctx.Err())
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	return firstErr
}
