package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"strategy-backtester/internal/feed"
	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

func coordinatorConfig(instances map[string]service.InstanceConfig) *service.Config {
	return &service.Config{
		Mode: service.ModeBacktest,
		Backtest: service.BacktestConfig{
			Concurrency: 2,
		},
		Instances: instances,
	}
}

func TestCoordinatorRunsAllInstances(t *testing.T) {
	data := append(flatThenRamp("BTCUSDT", 30, 30, 2), flatThenRamp("ETHUSDT", 30, 30, 2)...)
	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"btc": {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: *orchConfig()},
		"eth": {Symbol: "ETHUSDT", Timeframe: "5m", Strategy: *orchConfig()},
	})

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: data}, service.NewTestLogger()).Run(context.Background())

	require.Empty(t, out.Errors)
	require.Len(t, out.PerSymbol, 2)
	for name, res := range out.PerSymbol {
		assert.Equal(t, 1, res.TotalTrades, name)
		assert.False(t, res.Cancelled, name)
	}
}

func TestCoordinatorIsolatesFailures(t *testing.T) {
	bad := *orchConfig()
	bad.MaxLots = 0 // CRITICAL: 启动前校验拒绝

	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"good":   {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: *orchConfig()},
		"bad":    {Symbol: "ETHUSDT", Timeframe: "5m", Strategy: bad},
		"nodata": {Symbol: "SOLUSDT", Timeframe: "5m", Strategy: *orchConfig()},
	})

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: flatThenRamp("BTCUSDT", 30, 30, 2)},
		service.NewTestLogger()).Run(context.Background())

	// 单个实例失败不影响其它实例
	require.Len(t, out.PerSymbol, 1)
	assert.Contains(t, out.PerSymbol, "good")
	require.Len(t, out.Errors, 2)
	assert.Contains(t, out.Errors["bad"], "config rejected")
	assert.Contains(t, out.Errors["nodata"], "no candles")
}

func TestCoordinatorUnknownStrategyIsIsolated(t *testing.T) {
	bad := *orchConfig()
	bad.Name = "martingale"

	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"bad": {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: bad},
	})

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: flatThenRamp("BTCUSDT", 30, 30, 2)},
		service.NewTestLogger()).Run(context.Background())

	assert.Empty(t, out.PerSymbol)
	assert.Contains(t, out.Errors["bad"], "unknown strategy")
}

func TestCoordinatorPortfolioMetrics(t *testing.T) {
	data := append(flatThenRamp("BTCUSDT", 30, 30, 2), flatThenRamp("ETHUSDT", 30, 30, 2)...)
	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"btc": {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: *orchConfig()},
		"eth": {Symbol: "ETHUSDT", Timeframe: "5m", Strategy: *orchConfig()},
	})

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: data}, service.NewTestLogger()).Run(context.Background())
	require.Empty(t, out.Errors)

	pm := out.Portfolio
	require.NotEmpty(t, pm.EquityCurve)

	// 等额本金两实例: HHI = 0.5^2 + 0.5^2
	assert.InDelta(t, 0.5, pm.ConcentrationRisk, 1e-9)

	// 完全相同的数据和策略: 收益率完全相关，无分散化收益
	require.Contains(t, pm.Correlations, "btc/eth")
	assert.InDelta(t, 1.0, pm.Correlations["btc/eth"], 1e-6)
	assert.InDelta(t, 1.0, pm.DiversificationRatio, 1e-6)

	// 组合权益为各实例之和
	perSum := out.PerSymbol["btc"].EquityCurve[0].Equity + out.PerSymbol["eth"].EquityCurve[0].Equity
	assert.InDelta(t, perSum, pm.EquityCurve[0].Equity, 1e-9)
}

func TestCoordinatorShortDataInstanceKeepsPortfolioAlive(t *testing.T) {
	// ETH 的 K 线数不足以越过预热期: 运行正常结束但没有任何权益采样
	data := append(flatThenRamp("BTCUSDT", 30, 30, 2), flatThenRamp("ETHUSDT", 5, 0, 0)...)
	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"btc": {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: *orchConfig()},
		"eth": {Symbol: "ETHUSDT", Timeframe: "5m", Strategy: *orchConfig()},
	})

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: data}, service.NewTestLogger()).Run(context.Background())

	require.Empty(t, out.Errors)
	require.Len(t, out.PerSymbol, 2)
	assert.Zero(t, out.PerSymbol["eth"].TotalTrades)
	assert.Empty(t, out.PerSymbol["eth"].EquityCurve)

	// 组合曲线按 BTC 的采样对齐, 空曲线的 ETH 以初始资金计入
	pm := out.Portfolio
	require.Len(t, pm.EquityCurve, len(out.PerSymbol["btc"].EquityCurve))
	ethCapital := cfg.Instances["eth"].Strategy.Capital
	assert.InDelta(t, out.PerSymbol["btc"].EquityCurve[0].Equity+ethCapital,
		pm.EquityCurve[0].Equity, 1e-9)
}

func TestCoordinatorWarnsOnUnparseableDateBound(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	co := NewCoordinator(coordinatorConfig(nil), &feed.SliceFeed{}, zap.New(core).Sugar())

	// 拼错的日期不得静默退化为全历史: 忽略该端点并告警
	assert.True(t, co.boundTime("start", "06/01/2025").IsZero())
	assert.Equal(t, 1, logs.FilterMessage("unparseable backtest date, bound ignored").Len())

	// 合法日期与空串不告警
	assert.False(t, co.boundTime("start", "2025-06-01").IsZero())
	assert.True(t, co.boundTime("end", "").IsZero())
	assert.Equal(t, 1, logs.Len())
}

func TestCoordinatorCancellationPropagates(t *testing.T) {
	cfg := coordinatorConfig(map[string]service.InstanceConfig{
		"btc": {Symbol: "BTCUSDT", Timeframe: "5m", Strategy: *orchConfig()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewCoordinator(cfg, &feed.SliceFeed{Candles: flatThenRamp("BTCUSDT", 30, 30, 2)},
		service.NewTestLogger()).Run(ctx)

	require.Contains(t, out.PerSymbol, "btc")
	assert.True(t, out.PerSymbol["btc"].Cancelled)
	assert.Zero(t, out.PerSymbol["btc"].TotalTrades)
}

func TestComputePortfolioEmptyRuns(t *testing.T) {
	pm := computePortfolio(nil)
	assert.Empty(t, pm.EquityCurve)
	assert.Zero(t, pm.ConcentrationRisk)
	assert.NotNil(t, pm.Correlations)
}

func TestParseDay(t *testing.T) {
	assert.Equal(t, 2025, parseDay("2025-06-01").Year())
	assert.Equal(t, 2025, parseDay("2025-06-01T00:00:00Z").Year())
	assert.True(t, parseDay("").IsZero())
	assert.True(t, parseDay("garbage").IsZero())
}

func TestSortedReasons(t *testing.T) {
	stats := map[model.ExitReason]model.ExitReasonStat{
		model.ExitRSI:          {Reason: model.ExitRSI, Count: 1},
		model.ExitTrailingStop: {Reason: model.ExitTrailingStop, Count: 5},
		model.ExitEMAFlip:      {Reason: model.ExitEMAFlip, Count: 3},
	}
	out := SortedReasons(stats)
	require.Len(t, out, 3)
	assert.Equal(t, model.ExitTrailingStop, out[0].Reason)
	assert.Equal(t, model.ExitEMAFlip, out[1].Reason)
	assert.Equal(t, model.ExitRSI, out[2].Reason)
}
