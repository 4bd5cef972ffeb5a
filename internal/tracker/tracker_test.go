package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemiser/tradengine/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRecordOrder_BuyAccumulatesAverageCost(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()

	require.NoError(t, tr.RecordOrder(ctx, "o1", "NUCLEAR", "SPY", model.SideBuy, d("10"), d("100"), time.Now()))
	require.NoError(t, tr.RecordOrder(ctx, "o2", "NUCLEAR", "SPY", model.SideBuy, d("10"), d("120"), time.Now()))

	pnl := tr.GetStrategyPnL("NUCLEAR", map[model.Symbol]decimal.Decimal{"SPY": d("130")})
	require.Len(t, pnl.Positions, 1)
	pos := pnl.Positions[0]
	assert.True(t, pos.Quantity.Equal(d("20")))
	assert.True(t, pos.AverageCost.Equal(d("110")))
}

func TestRecordOrder_PartialSellRealizesPnLAgainstPreSaleAverage(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()

	require.NoError(t, tr.RecordOrder(ctx, "o1", "TECL", "QQQ", model.SideBuy, d("10"), d("100"), time.Now()))
	require.NoError(t, tr.RecordOrder(ctx, "o2", "TECL", "QQQ", model.SideSell, d("4"), d("150"), time.Now()))

	pnl := tr.GetStrategyPnL("TECL", map[model.Symbol]decimal.Decimal{"QQQ": d("150")})
	assert.True(t, pnl.RealizedPnL.Equal(d("200"))) // 4 * (150 - 100)

	require.Len(t, pnl.Positions, 1)
	pos := pnl.Positions[0]
	assert.True(t, pos.Quantity.Equal(d("6")))
	assert.True(t, pos.AverageCost.Equal(d("100"))) // unchanged on partial sell
}

func TestRecordOrder_FullLiquidationZerosPositionAndRealizesAgainstFullCostBasis(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()

	require.NoError(t, tr.RecordOrder(ctx, "o1", "KLM", "IWM", model.SideBuy, d("10"), d("50"), time.Now()))
	require.NoError(t, tr.RecordOrder(ctx, "o2", "KLM", "IWM", model.SideSell, d("10"), d("60"), time.Now()))

	pnl := tr.GetStrategyPnL("KLM", nil)
	assert.True(t, pnl.RealizedPnL.Equal(d("100"))) // 10*60 - 10*50
	require.Len(t, pnl.Positions, 1)
	assert.True(t, pnl.Positions[0].Quantity.IsZero())
	assert.True(t, pnl.Positions[0].IsFlat())
}

func TestGetStrategyPnL_TotalReturnPctUsesAllocationValue(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()
	require.NoError(t, tr.RecordOrder(ctx, "o1", "NUCLEAR", "SPY", model.SideBuy, d("10"), d("100"), time.Now()))

	pnl := tr.GetStrategyPnL("NUCLEAR", map[model.Symbol]decimal.Decimal{"SPY": d("110")})
	assert.True(t, pnl.Total().Equal(d("100"))) // unrealized: 10*(110-100)
	assert.True(t, pnl.AllocationValue.Equal(d("1100")))
	assert.True(t, pnl.TotalReturnPct().Equal(d("100").Div(d("1100"))))
}

func TestGetStrategyPnL_ZeroAllocationValueReturnsZeroPct(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	pnl := tr.GetStrategyPnL("GHOST", nil)
	assert.True(t, pnl.TotalReturnPct().IsZero())
}

func TestRecordOrder_UnattributedFillFallsBackToExistingOwnerThenDefault(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()

	require.NoError(t, tr.RecordOrder(ctx, "o1", "NUCLEAR", "SPY", model.SideBuy, d("5"), d("100"), time.Now()))
	// A liquidation fill with no strategy attribution should land on the existing owner.
	require.NoError(t, tr.RecordOrder(ctx, "o2", "", "SPY", model.SideSell, d("5"), d("120"), time.Now()))

	pnl := tr.GetStrategyPnL("NUCLEAR", nil)
	assert.True(t, pnl.RealizedPnL.Equal(d("100")))

	// An unattributed fill on a symbol with no existing owner falls back to the default.
	require.NoError(t, tr.RecordOrder(ctx, "o3", "", "IBM", model.SideBuy, d("1"), d("50"), time.Now()))
	defaultPnl := tr.GetStrategyPnL("DEFAULT", nil)
	require.Len(t, defaultPnl.Positions, 1)
	assert.Equal(t, model.Symbol("IBM"), defaultPnl.Positions[0].Symbol)
}

func TestArchiveDailyPnL_IsIdempotentPerDateKey(t *testing.T) {
	st := newMemStore()
	tr := New(st, "DEFAULT", nil)
	ctx := context.Background()
	require.NoError(t, tr.RecordOrder(ctx, "o1", "NUCLEAR", "SPY", model.SideBuy, d("10"), d("100"), time.Now()))

	now := time.Now()
	_, err := tr.ArchiveDailyPnL(ctx, map[model.Symbol]decimal.Decimal{"SPY": d("110")}, "2026-07-30", now)
	require.NoError(t, err)
	putsAfterFirst := st.puts

	_, err = tr.ArchiveDailyPnL(ctx, map[model.Symbol]decimal.Decimal{"SPY": d("200")}, "2026-07-30", now)
	require.NoError(t, err)
	assert.Equal(t, putsAfterFirst, st.puts, "second archive call for the same date_key must not write again")
}

func TestArchiveDailyPnL_ComputesPortfolioTotals(t *testing.T) {
	tr := New(newMemStore(), "DEFAULT", nil)
	ctx := context.Background()
	require.NoError(t, tr.RecordOrder(ctx, "o1", "NUCLEAR", "SPY", model.SideBuy, d("10"), d("100"), time.Now()))
	require.NoError(t, tr.RecordOrder(ctx, "o2", "TECL", "QQQ", model.SideBuy, d("5"), d("200"), time.Now()))

	archive, err := tr.ArchiveDailyPnL(ctx, map[model.Symbol]decimal.Decimal{"SPY": d("110"), "QQQ": d("210")}, "2026-07-31", time.Now())
	require.NoError(t, err)

	require.Len(t, archive.PerStrategy, 2)
	assert.True(t, archive.PortfolioUnrealized.Equal(d("100").Add(d("50")))) // 10*10 + 5*10
	assert.True(t, archive.PortfolioTotal.Equal(archive.PortfolioRealized.Add(archive.PortfolioUnrealized)))
}

func TestLoad_FallsBackToEmptyOnUnparseableDocument(t *testing.T) {
	st := newMemStore()
	st.objects[keyCurrentPositions] = []byte("not json")
	tr := New(st, "DEFAULT", nil)

	require.NoError(t, tr.Load(context.Background()))
	pnl := tr.GetStrategyPnL("NUCLEAR", nil)
	assert.Empty(t, pnl.Positions)
}
