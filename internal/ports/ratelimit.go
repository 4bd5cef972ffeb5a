package ports

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alchemiser/tradengine/internal/model"
)

// RateLimitedMarketData wraps a MarketDataPort with a token-bucket
// limiter, per spec §4.3.5's retry/backoff rules: retries on a
// throttled vendor must not themselves hammer the vendor.
type RateLimitedMarketData struct {
	inner   MarketDataPort
	limiter *rate.Limiter
}

// NewRateLimitedMarketData wraps inner with a limiter allowing up to
// rps requests per second, bursting up to burst.
func NewRateLimitedMarketData(inner MarketDataPort, rps float64, burst int) *RateLimitedMarketData {
	return &RateLimitedMarketData{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedMarketData) GetCurrentPrice(ctx context.Context, symbol model.Symbol) (decimal.Decimal, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return decimal.Zero, false, err
	}
	return r.inner.GetCurrentPrice(ctx, symbol)
}

func (r *RateLimitedMarketData) GetLatestQuote(ctx context.Context, symbol model.Symbol) (Quote, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Quote{}, false, err
	}
	return r.inner.GetLatestQuote(ctx, symbol)
}

func (r *RateLimitedMarketData) IsFractionable(ctx context.Context, symbol model.Symbol) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return r.inner.IsFractionable(ctx, symbol)
}

// RateLimitedAccount wraps an AccountPort with the same token-bucket
// limiter shape, for brokers that throttle order/account endpoints
// independently of market data.
type RateLimitedAccount struct {
	inner   AccountPort
	limiter *rate.Limiter
}

// NewRateLimitedAccount wraps inner with a limiter allowing up to rps
// requests per second, bursting up to burst.
func NewRateLimitedAccount(inner AccountPort, rps float64, burst int) *RateLimitedAccount {
	return &RateLimitedAccount{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedAccount) GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return AccountSnapshot{}, err
	}
	return r.inner.GetAccountSnapshot(ctx)
}

func (r *RateLimitedAccount) GetPositions(ctx context.Context) ([]PositionDescriptor, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.GetPositions(ctx)
}

func (r *RateLimitedAccount) GetOpenOrders(ctx context.Context) ([]OrderDescriptor, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.GetOpenOrders(ctx)
}

func (r *RateLimitedAccount) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return r.inner.CancelOrder(ctx, orderID)
}

func (r *RateLimitedAccount) LiquidatePosition(ctx context.Context, symbol model.Symbol) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.LiquidatePosition(ctx, symbol)
}

func (r *RateLimitedAccount) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.SubmitOrder(ctx, req)
}

func (r *RateLimitedAccount) GetOrderStatus(ctx context.Context, orderID string) (OrderStatusReport, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return OrderStatusReport{}, err
	}
	return r.inner.GetOrderStatus(ctx, orderID)
}
