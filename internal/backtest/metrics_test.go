package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-backtester/internal/model"
)

func trade(pnl float64, reason model.ExitReason) model.ClosedTrade {
	return model.ClosedTrade{Symbol: "BTCUSDT", Pnl: pnl, ExitReason: reason}
}

func equityCurve(values ...float64) []model.EquityPoint {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.EquityPoint, len(values))
	for i, v := range values {
		out[i] = model.EquityPoint{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Equity: v}
	}
	return out
}

func TestComputeResultZeroTrades(t *testing.T) {
	res := ComputeResult("BTCUSDT", "5m", 10000, nil, nil)

	// 空 K 线/零成交: 全部指标为零值，不得报错或产生 NaN
	assert.Zero(t, res.TotalTrades)
	assert.Zero(t, res.WinRate)
	assert.Zero(t, res.ProfitFactor)
	assert.Zero(t, res.SharpeRatio)
	assert.Zero(t, res.MaxDrawdown)
	assert.Empty(t, res.ExitReasons)
}

func TestComputeResultAggregates(t *testing.T) {
	trades := []model.ClosedTrade{
		trade(100, model.ExitTrailingStop),
		trade(-40, model.ExitEMAFlip),
		trade(60, model.ExitTrailingStop),
		trade(-20, model.ExitRSI),
	}

	res := ComputeResult("BTCUSDT", "5m", 10000, trades, equityCurve(10000, 10100, 10060, 10120, 10100))

	assert.Equal(t, 4, res.TotalTrades)
	assert.Equal(t, 2, res.WinningTrades)
	assert.Equal(t, 2, res.LosingTrades)
	assert.Equal(t, 50.0, res.WinRate)
	assert.Equal(t, 100.0, res.TotalReturn)
	assert.Equal(t, 1.0, res.TotalReturnPercentage)
	assert.InDelta(t, 160.0/60.0, res.ProfitFactor, 1e-9)
	assert.Equal(t, 80.0, res.AverageWin)
	assert.Equal(t, -30.0, res.AverageLoss)

	require.Contains(t, res.ExitReasons, model.ExitTrailingStop)
	stat := res.ExitReasons[model.ExitTrailingStop]
	assert.Equal(t, 2, stat.Count)
	assert.Equal(t, 160.0, stat.TotalPnl)
	assert.Equal(t, 80.0, stat.AvgPnl)
}

func TestComputeResultBreakEvenTrades(t *testing.T) {
	trades := []model.ClosedTrade{
		trade(100, model.ExitTrailingStop),
		trade(0, model.ExitEMAFlip),
		trade(-50, model.ExitRSI),
	}

	res := ComputeResult("BTCUSDT", "5m", 10000, trades, nil)

	// 平手单计入总数但不计入胜负，也不拉低平均亏损
	assert.Equal(t, 3, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.Equal(t, -50.0, res.AverageLoss)
	assert.InDelta(t, 100.0/50.0, res.ProfitFactor, 1e-9)

	// 全部平手: 胜负双零，盈亏比不触发哨兵值
	res = ComputeResult("BTCUSDT", "5m", 10000,
		[]model.ClosedTrade{trade(0, model.ExitEMAFlip)}, nil)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Zero(t, res.WinningTrades)
	assert.Zero(t, res.LosingTrades)
	assert.Zero(t, res.ProfitFactor)
	assert.Zero(t, res.WinRate)
}

func TestComputeResultProfitFactorSentinel(t *testing.T) {
	// 全部盈利: 盈亏比取封顶哨兵值而不是除零
	res := ComputeResult("BTCUSDT", "5m", 10000,
		[]model.ClosedTrade{trade(50, model.ExitRSI), trade(30, model.ExitRSI)}, nil)
	assert.Equal(t, ProfitFactorCapped, res.ProfitFactor)

	// 全部亏损
	res = ComputeResult("BTCUSDT", "5m", 10000,
		[]model.ClosedTrade{trade(-50, model.ExitRSI)}, nil)
	assert.Zero(t, res.ProfitFactor)
}

func TestMaxDrawdown(t *testing.T) {
	// 峰值 10200 -> 谷底 9690: 5%
	dd := maxDrawdown(equityCurve(10000, 10200, 9690, 10100))
	assert.InDelta(t, 5.0, dd, 1e-9)

	assert.Zero(t, maxDrawdown(equityCurve(100, 110, 120)))
	assert.Zero(t, maxDrawdown(nil))
}

func TestSharpeRatioFlatEquityIsZero(t *testing.T) {
	assert.Zero(t, sharpeRatio(equityCurve(10000, 10000, 10000, 10000), "5m"))
	assert.Zero(t, sharpeRatio(equityCurve(10000), "5m"))
}

func TestSharpeRatioSignFollowsDrift(t *testing.T) {
	up := sharpeRatio(equityCurve(10000, 10010, 10025, 10030, 10050, 10055), "5m")
	down := sharpeRatio(equityCurve(10000, 9990, 9975, 9970, 9950, 9945), "5m")
	assert.Greater(t, up, 0.0)
	assert.Less(t, down, 0.0)
}

func TestCorrelation(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
	inverse := []float64{-0.01, 0.02, -0.03, 0.01, -0.02}

	assert.InDelta(t, 1.0, correlation(a, a), 1e-9)
	assert.InDelta(t, -1.0, correlation(a, inverse), 1e-9)
	assert.Zero(t, correlation(a, []float64{0.01}))
	assert.Zero(t, correlation(a, []float64{0, 0, 0, 0, 0}))
}
