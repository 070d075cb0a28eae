package likes

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"golang.org/x/sync/errgroup"
)

const (
	checkWait        = 2 * time.Millisecond
	checkBatchSize   = 25
	checkConcurrency = 4
)

// CheckFunc asks the server whether the current user likes one user.
type CheckFunc func(ctx context.Context, userID int64) (bool, error)

// checker coalesces concurrent like checks into batches and caches answers.
// The server only answers one id per request, so each batch fans out with
// bounded concurrency.
type checker struct {
	loader *dataloader.Loader[int64, bool]
}

func newChecker(check CheckFunc, ttl time.Duration, now func() time.Time) *checker {
	batch := func(ctx context.Context, keys []int64) []*dataloader.Result[bool] {
		results := make([]*dataloader.Result[bool], len(keys))

		var g errgroup.Group
		g.SetLimit(checkConcurrency)
		for i, key := range keys {
			g.Go(func() error {
				liked, err := check(ctx, key)
				results[i] = &dataloader.Result[bool]{Data: liked, Error: err}
				return nil
			})
		}
		_ = g.Wait()
		return results
	}

	return &checker{
		loader: dataloader.NewBatchedLoader(batch,
			dataloader.WithWait[int64, bool](checkWait),
			dataloader.WithBatchCapacity[int64, bool](checkBatchSize),
			dataloader.WithCache[int64, bool](newTTLCache[int64, bool](ttl, now)),
		),
	}
}

// Check returns the cached or freshly fetched answer. Failures are not cached.
func (c *checker) Check(ctx context.Context, userID int64) (bool, error) {
	liked, err := c.loader.Load(ctx, userID)()
	if err != nil {
		c.loader.Clear(ctx, userID)
		return false, err
	}
	return liked, nil
}

// Prime records a settled outcome so later checks skip the server.
func (c *checker) Prime(ctx context.Context, userID int64, liked bool) {
	c.loader.Clear(ctx, userID).Prime(ctx, userID, liked)
}

// Forget drops every cached answer.
func (c *checker) Forget() {
	c.loader.ClearAll()
}
