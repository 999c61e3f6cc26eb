package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/internal/executor"
	"strategy-backtester/internal/feed"
	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// DefaultConcurrency 未配置并发度时同时运行的 Symbol 回测数
const DefaultConcurrency = 4

// PortfolioMetrics 跨 Symbol 聚合指标
type PortfolioMetrics struct {
	EquityCurve          []model.EquityPoint
	Correlations         map[string]float64 // "A/B" -> 收益率相关系数
	DiversificationRatio float64
	ConcentrationRisk    float64 // 资金权重的 HHI
}

// PortfolioResult 一次多 Symbol 回测的全部输出。
// 单个 Symbol 失败只记入 Errors，不影响其它 Symbol。
type PortfolioResult struct {
	PerSymbol map[string]*model.BacktestResult
	Errors    map[string]string
	Portfolio PortfolioMetrics
}

// Coordinator 按配置实例并发调度各 Symbol 的回测
type Coordinator struct {
	cfg    *service.Config
	feed   feed.Feed
	logger *zap.SugaredLogger
}

func NewCoordinator(cfg *service.Config, f feed.Feed, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{cfg: cfg, feed: f, logger: logger}
}

type symbolRun struct {
	name    string
	symbol  string
	capital float64
	result  *model.BacktestResult
	err     error
}

// Run 为每个配置实例起一个 goroutine，信号量限制并发度，
// 全部结束后聚合组合级指标。
func (co *Coordinator) Run(ctx context.Context) *PortfolioResult {
	concurrency := co.cfg.Backtest.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	start := co.boundTime("start", co.cfg.Backtest.Start)
	end := co.boundTime("end", co.cfg.Backtest.End)

	sem := make(chan struct{}, concurrency)
	results := make(chan symbolRun, len(co.cfg.Instances))
	var wg sync.WaitGroup

	for name, inst := range co.cfg.Instances {
		wg.Add(1)
		go func(name string, inst service.InstanceConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- co.runOne(ctx, name, inst, start, end)
		}(name, inst)
	}

	wg.Wait()
	close(results)

	out := &PortfolioResult{
		PerSymbol: make(map[string]*model.BacktestResult),
		Errors:    make(map[string]string),
	}
	var runs []symbolRun
	for r := range results {
		if r.err != nil {
			co.logger.Errorw("symbol backtest failed", "instance", r.name, "symbol", r.symbol, "err", r.err)
			out.Errors[r.name] = r.err.Error()
			continue
		}
		out.PerSymbol[r.name] = r.result
		runs = append(runs, r)
	}

	out.Portfolio = computePortfolio(runs)
	return out
}

func (co *Coordinator) runOne(ctx context.Context, name string, inst service.InstanceConfig, start, end time.Time) symbolRun {
	run := symbolRun{name: name, symbol: inst.Symbol, capital: inst.Strategy.Capital}
	logger := co.logger.With("instance", name, "symbol", inst.Symbol)

	// 启动前校验: 有 CRITICAL 问题的实例拒绝运行
	report := service.ValidateStrategy(&inst.Strategy)
	if report.HasCritical() {
		run.err = fmt.Errorf("config rejected:\n%s", report)
		return run
	}
	if len(report.Issues) > 0 {
		logger.Warnw("config validation warnings", "report", report.String())
	}

	candles, err := co.feed.GetHistoricalCandles(ctx, inst.Symbol, inst.Timeframe, start, end)
	if err != nil {
		run.err = fmt.Errorf("load candles: %w", err)
		return run
	}

	exec := executor.NewSimulatedExecutor(executor.SimConfig{
		InitialCapital: inst.Strategy.Capital,
		FeeRate:        co.cfg.Backtest.FeeRate,
	}, logger)

	orch, err := NewOrchestrator(inst.Symbol, inst.Timeframe, &inst.Strategy, inst.Params, co.cfg.Backtest.FeeRate, exec, logger)
	if err != nil {
		run.err = fmt.Errorf("build orchestrator: %w", err)
		return run
	}

	logger.Infow("backtest started", "candles", len(candles), "warmup", orch.Warmup())
	run.result = orch.Run(ctx, candles)
	logger.Infow("backtest finished",
		"trades", run.result.TotalTrades,
		"return", run.result.TotalReturn,
		"cancelled", run.result.Cancelled)
	return run
}

// boundTime 解析回测区间端点。拼错的日期不能静默变成全历史回测:
// 告警后忽略该端点。
func (co *Coordinator) boundTime(label, s string) time.Time {
	t := parseDay(s)
	if s != "" && t.IsZero() {
		co.logger.Warnw("unparseable backtest date, bound ignored", "bound", label, "value", s)
	}
	return t
}

func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// computePortfolio 聚合组合权益曲线、两两相关性、分散化比率与集中度。
// 曲线按采样下标对齐，较短序列用其末值延续。
func computePortfolio(runs []symbolRun) PortfolioMetrics {
	pm := PortfolioMetrics{Correlations: make(map[string]float64)}
	if len(runs) == 0 {
		return pm
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].name < runs[j].name })

	maxLen := 0
	longest := 0
	var totalCapital float64
	for i, r := range runs {
		totalCapital += r.capital
		if n := len(r.result.EquityCurve); n > maxLen {
			maxLen, longest = n, i
		}
	}
	if maxLen == 0 || totalCapital <= 0 {
		return pm
	}

	pm.EquityCurve = make([]model.EquityPoint, maxLen)
	for i := 0; i < maxLen; i++ {
		pt := model.EquityPoint{Timestamp: runs[longest].result.EquityCurve[i].Timestamp}
		for _, r := range runs {
			curve := r.result.EquityCurve
			// K 线不足以越过预热期的实例没有权益采样, 按初始资金计入组合
			if len(curve) == 0 {
				pt.Equity += r.capital
				continue
			}
			idx := i
			if idx >= len(curve) {
				idx = len(curve) - 1
			}
			pt.Equity += curve[idx].Equity
		}
		pm.EquityCurve[i] = pt
	}

	rets := make([][]float64, len(runs))
	for i, r := range runs {
		rets[i] = equityReturns(r.result.EquityCurve)
	}

	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			key := runs[i].name + "/" + runs[j].name
			pm.Correlations[key] = correlation(rets[i], rets[j])
		}
	}

	// 分散化比率 = 权重加权的单边波动率之和 / 组合波动率
	var weightedVol float64
	var hhi float64
	for i, r := range runs {
		w := r.capital / totalCapital
		hhi += w * w
		weightedVol += w * stddev(rets[i], mean(rets[i]))
	}
	pm.ConcentrationRisk = hhi

	portRets := equityReturns(pm.EquityCurve)
	portVol := stddev(portRets, mean(portRets))
	if portVol > 0 {
		pm.DiversificationRatio = weightedVol / portVol
	}
	return pm
}
