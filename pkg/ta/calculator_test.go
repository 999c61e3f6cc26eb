package ta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
)

func testParams() Params {
	return Params{
		EmaFastPeriod: 3,
		EmaSlowPeriod: 5,
		RsiPeriod:     4,
		AtrPeriod:     4,
	}
}

func feedCandles(c *Calculator, n int, base float64) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := base + float64(i)
		c.Update(model.Candle{
			Symbol:    "BTCUSDT",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
		})
	}
}

func TestCalculatorIndicatorsBecomeReady(t *testing.T) {
	c := NewCalculator(NewRegistry(), testParams(), zap.NewNop().Sugar())

	// 历史不足: 任何指标都不可用
	feedCandles(c, 2, 100)
	snap := c.Snapshot()
	_, ok := snap.Value(IndEmaSlow)
	assert.False(t, ok)

	feedCandles(c, 20, 102)
	require.Equal(t, 22, c.BarCount())

	snap = c.Snapshot()
	fast, okF := snap.Value(IndEmaFast)
	slow, okS := snap.Value(IndEmaSlow)
	require.True(t, okF)
	require.True(t, okS)
	// 持续上涨的序列: 快线贴近价格，必在慢线上方
	assert.Greater(t, fast, slow)

	rsi, ok := snap.Value(IndRsi)
	require.True(t, ok)
	assert.Greater(t, rsi, 50.0) // 单边上涨
	assert.LessOrEqual(t, rsi, 100.0)

	atr, ok := snap.Value(IndAtr)
	require.True(t, ok)
	assert.Greater(t, atr, 0.0)
}

func TestCalculatorSnapshotCarriesPrevValues(t *testing.T) {
	c := NewCalculator(NewRegistry(), testParams(), zap.NewNop().Sugar())
	feedCandles(c, 20, 100)

	snap := c.Snapshot()
	cur, okC := snap.Value(IndEmaFast)
	prev, okP := snap.PrevValue(IndEmaFast)
	require.True(t, okC)
	require.True(t, okP)
	// 上涨序列里当前 EMA 严格高于前值
	assert.Greater(t, cur, prev)
}

func TestCalculatorSkipsUnconfiguredIndicators(t *testing.T) {
	// 未配置 MACD/Supertrend 周期: 对应键不出现
	c := NewCalculator(NewRegistry(), testParams(), zap.NewNop().Sugar())
	feedCandles(c, 60, 100)

	snap := c.Snapshot()
	_, ok := snap.Value(IndMacd)
	assert.False(t, ok)
	_, ok = snap.Value(IndSupertrend)
	assert.False(t, ok)
}

func TestCalculatorHistoryTruncation(t *testing.T) {
	c := NewCalculator(NewRegistry(), testParams(), zap.NewNop().Sugar())
	feedCandles(c, MaxHistory+50, 100)
	assert.Equal(t, MaxHistory, c.BarCount())
}

func TestSupertrendDirectionFollowsTrend(t *testing.T) {
	n := 60
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)

	// 前半平盘后强力上涨，然后急跌
	for i := 0; i < n; i++ {
		var p float64
		switch {
		case i < 20:
			p = 100
		case i < 40:
			p = 100 + float64(i-20)*3
		default:
			p = 160 - float64(i-40)*4
		}
		closes[i] = p
		high[i] = p + 1
		low[i] = p - 1
	}

	line, dir := Supertrend(high, low, closes, 10, 3)
	require.Len(t, line, n)
	require.Len(t, dir, n)

	// 前导位置无值
	assert.Zero(t, dir[5])

	// 上涨段末尾: 上升趋势，线在价格下方
	assert.Equal(t, 1.0, dir[39])
	assert.Less(t, line[39], closes[39])

	// 急跌段末尾: 趋势翻转
	assert.Equal(t, -1.0, dir[n-1])
	assert.Greater(t, line[n-1], closes[n-1])
}

func TestSupertrendShortInputIsZero(t *testing.T) {
	line, dir := Supertrend([]float64{1, 2}, []float64{1, 2}, []float64{1, 2}, 10, 3)
	assert.Equal(t, []float64{0, 0}, line)
	assert.Equal(t, []float64{0, 0}, dir)
}
