package engine

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Pearl2B/Hangfire/state"
)

// BatchResult is the outcome of one request of a batch.
type BatchResult struct {
	Request ChangeRequest
	Result  *state.Result
	Err     error
}

// ChangeStates runs every request through ChangeState, at most
// Config.BatchConcurrency at once and no faster than Config.BatchRate per
// second when a rate is set. Requests fail independently: results are
// returned in request order, each carrying its own error. The returned
// error is non-nil only when ctx ends before every request started.
func (eng *Engine) ChangeStates(ctx context.Context, reqs []ChangeRequest) ([]BatchResult, error) {
	config := eng.core.Config()
	results := make([]BatchResult, len(reqs))

	var limiter *rate.Limiter
	if config.BatchRate > 0 {
		burst := int(math.Ceil(config.BatchRate))
		limiter = rate.NewLimiter(rate.Limit(config.BatchRate), burst)
	}

	var g errgroup.Group
	g.SetLimit(config.BatchConcurrency)

	var startErr error
	for i, req := range reqs {
		results[i].Request = req
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				startErr = err
				for j := i; j < len(reqs); j++ {
					results[j].Request = reqs[j]
					results[j].Err = err
				}
				break
			}
		}
		g.Go(func() error {
			results[i].Result, results[i].Err = eng.ChangeState(ctx, req)
			return nil
		})
	}
	_ = g.Wait() // workers never return an error

	return results, startErr
}
