package ports

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/model"
)

// DefaultTTL is the ~60s cache lifetime called for by spec §4.5.
const DefaultTTL = 60 * time.Second

// CachedMarketData wraps a MarketDataPort with a short-TTL cache, so
// repeated price/quote lookups within one run don't repeatedly hit the
// vendor. The core does not require this — any MarketDataPort
// implementation may already cache internally — but when it doesn't,
// this adapter supplies the behavior spec §4.5 expects.
type CachedMarketData struct {
	inner MarketDataPort
	cache *gocache.Cache
}

// NewCachedMarketData wraps inner with a cache of the given TTL.
func NewCachedMarketData(inner MarketDataPort, ttl time.Duration) *CachedMarketData {
	return &CachedMarketData{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedMarketData) GetCurrentPrice(ctx context.Context, symbol model.Symbol) (decimal.Decimal, bool, error) {
	key := "price:" + symbol.String()
	if v, ok := c.cache.Get(key); ok {
		cached := v.(priceEntry)
		return cached.price, cached.ok, nil
	}
	price, ok, err := c.inner.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, false, err
	}
	c.cache.SetDefault(key, priceEntry{price: price, ok: ok})
	return price, ok, nil
}

type priceEntry struct {
	price decimal.Decimal
	ok    bool
}

func (c *CachedMarketData) GetLatestQuote(ctx context.Context, symbol model.Symbol) (Quote, bool, error) {
	key := "quote:" + symbol.String()
	if v, ok := c.cache.Get(key); ok {
		cached := v.(quoteEntry)
		return cached.quote, cached.ok, nil
	}
	q, ok, err := c.inner.GetLatestQuote(ctx, symbol)
	if err != nil {
		return Quote{}, false, err
	}
	c.cache.SetDefault(key, quoteEntry{quote: q, ok: ok})
	return q, ok, nil
}

type quoteEntry struct {
	quote Quote
	ok    bool
}

func (c *CachedMarketData) IsFractionable(ctx context.Context, symbol model.Symbol) (bool, error) {
	key := "fractionable:" + symbol.String()
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	frac, err := c.inner.IsFractionable(ctx, symbol)
	if err != nil {
		return false, err
	}
	// Fractionability changes rarely; cache it for a full TTL window
	// independent of the price/quote cache's churn.
	c.cache.Set(key, frac, gocache.DefaultExpiration)
	return frac, nil
}
