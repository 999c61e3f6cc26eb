package model

import "time"

// Candle 代表一根已完成的 OHLCV K 线
type Candle struct {
	Symbol    string
	Timeframe string // 周期，例如 "1m", "5m", "1h"
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Direction 定义了持仓或期望开仓的方向
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
	DirFlat  Direction = "FLAT"
)

func (d Direction) String() string {
	return string(d)
}

// Opposite returns the reverse trading direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirLong:
		return DirShort
	case DirShort:
		return DirLong
	}
	return DirFlat
}

// SignalType 定义了信号类型
type SignalType string

const (
	SignalEntry   SignalType = "ENTRY"
	SignalPyramid SignalType = "PYRAMID"
	SignalExit    SignalType = "EXIT"
)

// ExitReason 平仓原因的固定分类
type ExitReason string

const (
	ExitATRDecline     ExitReason = "ATR_DECLINE"
	ExitRSI            ExitReason = "RSI_EXIT"
	ExitTrailingStop   ExitReason = "TRAILING_STOP"
	ExitTime           ExitReason = "TIME_EXIT"
	ExitEMAFlip        ExitReason = "EMA_FLIP"
	ExitOppositeSignal ExitReason = "OPPOSITE_SIGNAL"
	ExitEndOfData      ExitReason = "END_OF_DATA"
)
