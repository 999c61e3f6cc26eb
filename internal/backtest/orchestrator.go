// Package backtest 回测编排：逐 K 线驱动指标、信号、账本和权益跟踪。
package backtest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/internal/executor"
	"strategy-backtester/internal/ledger"
	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
	"strategy-backtester/internal/strategy"
	"strategy-backtester/pkg/ta"
)

// Orchestrator 单个 Symbol 的回测循环。严格串行：
// 第 i+1 根 K 线一定在第 i 根的信号全部作用于账本之后处理，
// 指标状态和跟踪止损状态都因果依赖前序 K 线。
type Orchestrator struct {
	symbol    string
	timeframe string
	cfg       *service.StrategyConfig
	calc      *ta.Calculator
	eval      strategy.Evaluator
	book      *ledger.Ledger
	exec      executor.Executor
	logger    *zap.SugaredLogger

	warmup  int
	index   int
	started bool

	lastTime  time.Time
	lastClose float64

	realized float64
	trades   []model.ClosedTrade
	equity   []model.EquityPoint

	// 持仓期间的 ATR 跟踪: refAtr 为最近一次开仓/加仓时的 ATR，
	// peakAtr 为持仓期间峰值
	refAtr  float64
	peakAtr float64
}

// NewOrchestrator 构造单 Symbol 的回测编排器。
// params 为原始策略参数树 (预热期扫描用)，为 nil 时从类型化配置展开。
func NewOrchestrator(
	symbol, timeframe string,
	cfg *service.StrategyConfig,
	params map[string]any,
	feeRate float64,
	exec executor.Executor,
	logger *zap.SugaredLogger,
) (*Orchestrator, error) {

	eval, err := strategy.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = service.StrategyParams(cfg)
	}

	taParams := ta.Params{
		EmaFastPeriod:    cfg.EmaFastPeriod,
		EmaSlowPeriod:    cfg.EmaSlowPeriod,
		RsiPeriod:        cfg.RsiPeriod,
		AtrPeriod:        cfg.AtrPeriod,
		MacdFastPeriod:   cfg.MacdFastPeriod,
		MacdSlowPeriod:   cfg.MacdSlowPeriod,
		MacdSignalPeriod: cfg.MacdSignalPeriod,
		SupertrendPeriod: cfg.SupertrendPeriod,
		SupertrendMult:   cfg.SupertrendMultiplier,
	}

	return &Orchestrator{
		symbol:    symbol,
		timeframe: timeframe,
		cfg:       cfg,
		calc:      ta.NewCalculator(ta.NewRegistry(), taParams, logger),
		eval:      eval,
		book:      ledger.New(symbol, cfg, feeRate, logger),
		exec:      exec,
		logger:    logger,
		warmup:    service.WarmupPeriod(params),
	}, nil
}

// Warmup 计算得到的预热 K 线数
func (o *Orchestrator) Warmup() int {
	return o.warmup
}

// Step 处理一根 K 线。单根 K 线的评估失败只跳过，绝不中止整个运行。
func (o *Orchestrator) Step(ctx context.Context, c model.Candle) {
	// 防御性跳过非递增/重复时间戳
	if o.started && !c.Timestamp.After(o.lastTime) {
		o.logger.Debugw("non-monotonic candle skipped", "ts", c.Timestamp)
		return
	}
	o.started = true
	o.lastTime = c.Timestamp
	o.lastClose = c.Close

	o.calc.Update(c)
	o.index++

	// 预热期: 只积累指标历史，不产生信号
	if o.index <= o.warmup {
		return
	}

	snap := o.calc.Snapshot()
	atr, atrOK := snap.Value(ta.IndAtr)
	if o.book.Open() && atrOK && atr > o.peakAtr {
		o.peakAtr = atr
	}

	// 跟踪止损先行：每个 Lot 独立推进，同一根 K 线上
	// 它的退出信号优先于信号生成器的输出
	var signals []model.Signal
	trailAtr := 0.0
	if atrOK {
		trailAtr = atr
	}
	for _, lot := range o.book.Lots() {
		updated, sig := strategy.StepTrailing(lot, c, trailAtr, &o.cfg.Trailing)
		o.book.UpdateLot(updated)
		if sig != nil {
			signals = append(signals, *sig)
		}
	}

	ev := o.eval.Evaluate(&strategy.EvalContext{
		Candle:   c,
		Snapshot: snap,
		Position: o.positionContext(),
	})
	signals = append(signals, ev.Signals...)

	if len(signals) == 0 {
		o.sampleEquity(c)
		return
	}

	// 订单执行边界: 每个信号先经由 executor 成交，用成交价入账
	accepted := signals[:0]
	for _, sig := range signals {
		qty := o.cfg.PositionSize
		if sig.Type == model.SignalExit && sig.LotID == 0 {
			qty = float64(o.book.LotCount()) * o.cfg.PositionSize
		}
		fill, err := o.exec.PlaceOrder(ctx, sig.Direction, qty, sig.Price)
		if err != nil {
			o.logger.Warnw("order rejected, signal dropped", "signal", sig.String(), "err", err)
			continue
		}
		sig.Price = fill.Price
		accepted = append(accepted, sig)
	}

	prevLots := o.book.LotCount()
	closed, err := o.book.Apply(accepted, c)
	if err != nil {
		// 非法信号已在账本层丢弃并记录，这里只保留诊断痕迹
		o.logger.Debugw("ledger rejected signals", "err", err)
	}

	for _, t := range closed {
		o.realized += t.Pnl
		o.exec.RecordRealized(t.Pnl)
	}
	o.trades = append(o.trades, closed...)

	if o.book.LotCount() > prevLots && atrOK {
		o.refAtr = atr
		if o.peakAtr < atr {
			o.peakAtr = atr
		}
	}
	if !o.book.Open() {
		o.refAtr = 0
		o.peakAtr = 0
	}

	o.sampleEquity(c)
}

func (o *Orchestrator) positionContext() *strategy.PositionContext {
	if !o.book.Open() {
		return nil
	}
	lots := o.book.Lots()
	return &strategy.PositionContext{
		Direction: o.book.Direction(),
		LotCount:  len(lots),
		AvgEntry:  o.book.AvgEntry(),
		EntryTime: lots[0].EntryTime,
		RefAtr:    o.refAtr,
		PeakAtr:   o.peakAtr,
	}
}

// 按收盘价盯市并采样权益曲线
func (o *Orchestrator) sampleEquity(c model.Candle) {
	eq := o.cfg.Capital + o.realized + o.book.MarkToMarket(c.Close)
	o.equity = append(o.equity, model.EquityPoint{Timestamp: c.Timestamp, Equity: eq})
}

// Run 顺序消费全部 K 线。每根 K 线处理前检查取消信号；
// 取消时返回部分结果 (Cancelled=true)，不做数据末尾强平。
func (o *Orchestrator) Run(ctx context.Context, candles []model.Candle) *model.BacktestResult {
	cancelled := false
	for _, c := range candles {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		o.Step(ctx, c)
	}
	return o.Result(cancelled)
}

// Result 结束运行并产出聚合结果。正常结束时仍有持仓的，
// 按最后一根 K 线的收盘价强平，exitReason = END_OF_DATA。
func (o *Orchestrator) Result(cancelled bool) *model.BacktestResult {
	if !cancelled && o.book.Open() {
		closed := o.book.CloseAll(o.lastClose, o.lastTime, model.ExitEndOfData)
		for _, t := range closed {
			o.realized += t.Pnl
			o.exec.RecordRealized(t.Pnl)
		}
		o.trades = append(o.trades, closed...)
	}

	res := ComputeResult(o.symbol, o.timeframe, o.cfg.Capital, o.trades, o.equity)
	res.Cancelled = cancelled
	return res
}
