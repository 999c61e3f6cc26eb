package strategy

import (
	"time"

	"strategy-backtester/internal/model"
	"strategy-backtester/pkg/ta"
)

// PositionContext 评估时的持仓上下文 (由 orchestrator 提供)
type PositionContext struct {
	Direction model.Direction
	LotCount  int
	AvgEntry  float64
	EntryTime time.Time

	// RefAtr: 最近一次开仓/加仓时的 ATR，加仓扩张判断的基准
	// PeakAtr: 持仓期间的 ATR 峰值，ATR 回落退出的基准
	RefAtr  float64
	PeakAtr float64
}

// EvalContext 单根 K 线的评估输入
type EvalContext struct {
	Candle   model.Candle
	Snapshot *ta.Snapshot
	Position *PositionContext // nil 表示空仓
}

// Diagnostics 每次评估的诊断输出，用于调试和测试，不影响正确性
type Diagnostics struct {
	EmaFast     float64
	EmaSlow     float64
	EmaFastPrev float64
	EmaSlowPrev float64
	Rsi         float64
	Atr         float64
	CrossedUp   bool
	CrossedDown bool
	Blocked     string // 未产生信号时的原因码
}

// Evaluation 评估结果: 零个或多个信号加诊断信息
type Evaluation struct {
	Signals     []model.Signal
	Diagnostics Diagnostics
}

// Evaluator 是所有策略变体实现的统一契约，由工厂按名字选择。
// 每个实例绑定一个 Symbol，内部状态 (参考 ATR 等) 不跨 Symbol 共享。
type Evaluator interface {
	Name() string
	Evaluate(ec *EvalContext) Evaluation
}
