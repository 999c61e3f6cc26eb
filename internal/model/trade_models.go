package model

import (
	"fmt"
	"time"
)

// TrailState 跟踪止损状态机: INACTIVE -> ARMED -> TRIGGERED
type TrailState string

const (
	TrailInactive  TrailState = "INACTIVE"
	TrailArmed     TrailState = "ARMED"
	TrailTriggered TrailState = "TRIGGERED"
)

// Lot 代表持仓中的一个独立单元，拥有自己的入场价和跟踪止损状态
type Lot struct {
	ID         int64
	Symbol     string
	Direction  Direction
	EntryPrice float64
	EntryTime  time.Time
	Quantity   float64

	// 跟踪止损状态 (由 trailing engine 维护)
	HighestSinceEntry float64
	LowestSinceEntry  float64
	TrailingStop      float64
	Trail             TrailState
}

// Signal 结构体定义了策略层向账本发出的具体指令。
// Signal 是瞬态的：当根 K 线内被消费，从不持久化。
type Signal struct {
	Symbol    string
	Type      SignalType
	Direction Direction
	Price     float64
	Timestamp time.Time
	Reason    string     // 信号生成的文字描述
	Exit      ExitReason // 仅 Type == SignalExit 时有效
	LotID     int64      // 仅逐 Lot 跟踪止损退出设置；0 表示整仓退出
}

func (s Signal) String() string {
	return fmt.Sprintf("SIGNAL [%s | %s] %s @ %.4f | Reason: %s",
		s.Type, s.Direction, s.Symbol, s.Price, s.Reason)
}

// ClosedTrade 记录一次完整的开仓和平仓交易。创建后不可变。
type ClosedTrade struct {
	Symbol     string
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	EntryTime  time.Time
	ExitTime   time.Time
	Pnl        float64 // 已实现盈亏，扣除手续费
	PnlPercent float64
	Fees       float64 // 总手续费 (开仓 + 平仓)
	ExitReason ExitReason
}

// FillResult 是订单执行边界的返回值。回测模式下总是按信号价格成交。
type FillResult struct {
	Price     float64
	Quantity  float64
	Fee       float64
	Timestamp time.Time
}

// EquityPoint 权益曲线采样点 (每根 K 线一次，按收盘价盯市)
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// ExitReasonStat 按平仓原因聚合的交易统计
type ExitReasonStat struct {
	Reason   ExitReason
	Count    int
	TotalPnl float64
	AvgPnl   float64
}

// BacktestResult 单次回测的聚合结果。产生后只读。
type BacktestResult struct {
	Symbol                string
	TotalTrades           int
	WinningTrades         int
	LosingTrades          int
	WinRate               float64
	TotalReturn           float64
	TotalReturnPercentage float64
	MaxDrawdown           float64
	SharpeRatio           float64
	ProfitFactor          float64
	AverageWin            float64
	AverageLoss           float64
	Trades                []ClosedTrade
	EquityCurve           []EquityPoint
	ExitReasons           map[ExitReason]ExitReasonStat

	// 取消或部分失败时设置；结果仍然有效，只是不完整
	Cancelled bool
	Errors    []string
}
