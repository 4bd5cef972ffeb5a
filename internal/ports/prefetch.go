package ports

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/model"
)

// PrefetchPrices concurrently resolves the current price for every
// symbol in symbols, using a bounded worker pool so the Planner never
// blocks serially on N market-data round trips. Symbols the port
// reports no price for are simply absent from the result map.
func PrefetchPrices(ctx context.Context, md MarketDataPort, symbols []model.Symbol, poolSize int) (map[model.Symbol]decimal.Decimal, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make(map[model.Symbol]decimal.Decimal, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			price, ok, err := md.GetCurrentPrice(ctx, sym)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			if !ok {
				return
			}
			mu.Lock()
			results[sym] = price
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			errOnce.Do(func() { firstErr = submitErr })
		}
	}
	wg.Wait()
	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}
