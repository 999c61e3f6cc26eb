package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"strategy-backtester/internal/backtest"
	"strategy-backtester/internal/executor"
	"strategy-backtester/internal/feed"
	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

func main() {
	service.InitLogger()
	defer service.Logger.Sync()
	logger := service.Logger.Sugar()

	cfg, err := service.LoadConfig("config")
	if err != nil {
		logger.Fatalw("load config failed", "err", err)
	}

	// Ctrl+C 触发优雅退出：回测返回部分结果，实盘模拟停止消费行情
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case service.ModeBacktest:
		runBacktest(ctx, cfg, logger)
	case service.ModePaper:
		runPaper(ctx, cfg, logger)
	default:
		logger.Fatalw("unknown run mode", "mode", cfg.Mode)
	}
}

func runBacktest(ctx context.Context, cfg *service.Config, logger *zap.SugaredLogger) {
	csvFeed := feed.NewCSVFeed(cfg.Backtest.DataDir, logger)
	co := backtest.NewCoordinator(cfg, csvFeed, logger)
	out := co.Run(ctx)

	for name, res := range out.PerSymbol {
		printSummary(name, res)
	}
	for name, msg := range out.Errors {
		fmt.Printf("\n[%s] FAILED: %s\n", name, msg)
	}
	if len(out.PerSymbol) > 1 {
		printPortfolio(out.Portfolio)
	}
}

func printSummary(name string, res *model.BacktestResult) {
	fmt.Printf("\n===== %s (%s) =====\n", name, res.Symbol)
	if res.Cancelled {
		fmt.Println("  [partial result: run cancelled]")
	}
	fmt.Printf("  Trades:        %d (W %d / L %d, WinRate %.1f%%)\n",
		res.TotalTrades, res.WinningTrades, res.LosingTrades, res.WinRate)
	fmt.Printf("  Net P&L:       %.2f (%.2f%%)\n", res.TotalReturn, res.TotalReturnPercentage)
	fmt.Printf("  ProfitFactor:  %.2f  AvgWin: %.2f  AvgLoss: %.2f\n",
		res.ProfitFactor, res.AverageWin, res.AverageLoss)
	fmt.Printf("  MaxDrawdown:   %.2f%%  Sharpe: %.2f\n", res.MaxDrawdown, res.SharpeRatio)
	for _, stat := range backtest.SortedReasons(res.ExitReasons) {
		fmt.Printf("    %-16s count=%-4d pnl=%.2f avg=%.2f\n",
			stat.Reason, stat.Count, stat.TotalPnl, stat.AvgPnl)
	}
}

func printPortfolio(pm backtest.PortfolioMetrics) {
	fmt.Println("\n===== PORTFOLIO =====")
	fmt.Printf("  DiversificationRatio: %.2f\n", pm.DiversificationRatio)
	fmt.Printf("  ConcentrationRisk:    %.3f\n", pm.ConcentrationRisk)
	for pair, corr := range pm.Correlations {
		fmt.Printf("    corr %-24s %.3f\n", pair, corr)
	}
}

// runPaper 纸面交易: 交易所行情推送驱动与回测完全相同的编排器
func runPaper(ctx context.Context, cfg *service.Config, logger *zap.SugaredLogger) {
	type instance struct {
		name string
		orch *backtest.Orchestrator
	}

	bySymbol := make(map[string][]instance)
	var symbols []string
	var timeframe string
	for name, inst := range cfg.Instances {
		report := service.ValidateStrategy(&inst.Strategy)
		if report.HasCritical() {
			logger.Errorw("instance rejected", "instance", name, "report", report.String())
			continue
		}

		exec := executor.NewSimulatedExecutor(executor.SimConfig{
			InitialCapital: inst.Strategy.Capital,
			FeeRate:        cfg.Backtest.FeeRate,
		}, logger)
		strat := inst.Strategy
		orch, err := backtest.NewOrchestrator(inst.Symbol, inst.Timeframe, &strat, inst.Params, cfg.Backtest.FeeRate, exec, logger.With("instance", name))
		if err != nil {
			logger.Errorw("instance init failed", "instance", name, "err", err)
			continue
		}
		if len(bySymbol[inst.Symbol]) == 0 {
			symbols = append(symbols, inst.Symbol)
		}
		bySymbol[inst.Symbol] = append(bySymbol[inst.Symbol], instance{name: name, orch: orch})
		timeframe = inst.Timeframe
	}
	if len(symbols) == 0 {
		logger.Fatal("no runnable instances configured")
	}

	stream := feed.NewCandleStream(cfg.Exchange.WSURL, timeframe, symbols)
	go stream.Start(ctx)
	logger.Infow("paper trading started", "symbols", symbols, "timeframe", timeframe)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down, emitting partial results")
			for _, insts := range bySymbol {
				for _, in := range insts {
					printSummary(in.name, in.orch.Result(true))
				}
			}
			return
		case c := <-stream.Candles():
			for _, in := range bySymbol[c.Symbol] {
				in.orch.Step(ctx, c)
			}
		}
	}
}
