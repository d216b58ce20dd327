package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/layer"
	"github.com/lucidmem/kioku/internal/models"
)

// dispatch queries the given layers concurrently through the bounded
// worker pool and returns one source list per layer in the input order,
// plus the non-fatal errors encountered. Every adapter call is bounded
// by the per-layer timeout; a layer that times out is excluded from the
// pass without delaying the others. One retry with a short backoff is
// allowed on ErrUnavailable; ErrTimeout is not retried within a pass
// since the retry would eat into the overall deadline.
func (o *Orchestrator) dispatch(ctx context.Context, layers []models.LayerID, in *layer.Input) ([][]*models.LayerResult, []models.LayerError) {
	results := make([][]*models.LayerResult, len(layers))
	errs := make([]models.LayerError, 0)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, id := range layers {
		adapter, ok := o.adapters[id]
		if !ok {
			// Goroutines from earlier iterations may already be appending.
			mu.Lock()
			errs = append(errs, models.LayerError{Layer: id, Kind: "unavailable"})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(i int, id models.LayerID, adapter layer.Adapter) {
			defer wg.Done()

			select {
			case o.workers <- struct{}{}:
				defer func() { <-o.workers }()
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, models.LayerError{Layer: id, Kind: "timeout"})
				mu.Unlock()
				return
			}

			rs, err := o.queryWithRetry(ctx, adapter, in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, models.LayerError{Layer: id, Kind: errorKind(err)})
				return
			}
			results[i] = rs
		}(i, id, adapter)
	}
	wg.Wait()
	return results, errs
}

// queryWithRetry runs one adapter query under the per-layer timeout,
// retrying once on ErrUnavailable.
func (o *Orchestrator) queryWithRetry(ctx context.Context, adapter layer.Adapter, in *layer.Input) ([]*models.LayerResult, error) {
	rs, err := o.queryOnce(ctx, adapter, in)
	if err == nil || !errors.Is(err, layer.ErrUnavailable) {
		return rs, err
	}

	o.logger.Debug("layer unavailable, retrying",
		zap.String("layer", string(adapter.Name())),
		zap.Error(err),
	)
	select {
	case <-time.After(o.cfg.RetryBackoff.Std()):
	case <-ctx.Done():
		return nil, err
	}
	return o.queryOnce(ctx, adapter, in)
}

func (o *Orchestrator) queryOnce(ctx context.Context, adapter layer.Adapter, in *layer.Input) ([]*models.LayerResult, error) {
	layerCtx, cancel := context.WithTimeout(ctx, o.cfg.LayerTimeout.Std())
	defer cancel()
	return adapter.Query(layerCtx, in)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, layer.ErrTimeout):
		return "timeout"
	case errors.Is(err, layer.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
