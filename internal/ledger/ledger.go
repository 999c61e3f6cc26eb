// Package ledger 持仓与 Lot 账本：系统的核心状态机。
// 持有单个 Symbol 的全部未平仓 Lot，执行加仓上限和方向不变式，
// 按 FIFO 或 LIFO 顺序将退出信号匹配到具体 Lot。
package ledger

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

var (
	// ErrPositionConflict 已有反方向持仓时拒绝开仓
	ErrPositionConflict = errors.New("position conflict: opposite direction already open")
	// ErrLotLimitExceeded 达到 maxLots 时拒绝加仓
	ErrLotLimitExceeded = errors.New("lot limit exceeded")
)

type Ledger struct {
	symbol  string
	cfg     *service.StrategyConfig
	feeRate float64
	logger  *zap.SugaredLogger

	nextLotID int64
	lots      []model.Lot
}

func New(symbol string, cfg *service.StrategyConfig, feeRate float64, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{
		symbol:    symbol,
		cfg:       cfg,
		feeRate:   feeRate,
		logger:    logger,
		nextLotID: 1,
	}
}

// Apply 在一根 K 线内消费全部信号，返回产生的已平仓交易。
// 非法信号 (方向冲突、超过加仓上限) 被丢弃并记入返回的 error，
// 账本状态保持一致，绝不部分应用。
func (l *Ledger) Apply(signals []model.Signal, c model.Candle) ([]model.ClosedTrade, error) {
	var closed []model.ClosedTrade
	var errs []error

	for _, sig := range signals {
		switch sig.Type {
		case model.SignalEntry:
			if err := l.openLot(sig); err != nil {
				l.logger.Warnw("entry signal dropped", "signal", sig.String(), "err", err)
				errs = append(errs, fmt.Errorf("entry %s: %w", sig.Direction, err))
			}
		case model.SignalPyramid:
			if err := l.pyramidLot(sig); err != nil {
				l.logger.Warnw("pyramid signal dropped", "signal", sig.String(), "err", err)
				errs = append(errs, fmt.Errorf("pyramid %s: %w", sig.Direction, err))
			}
		case model.SignalExit:
			if sig.LotID != 0 {
				if trade, ok := l.closeLotByID(sig); ok {
					closed = append(closed, trade)
				}
				continue
			}
			closed = append(closed, l.CloseAll(sig.Price, sig.Timestamp, sig.Exit)...)
		}
	}

	return closed, errors.Join(errs...)
}

func (l *Ledger) openLot(sig model.Signal) error {
	if len(l.lots) > 0 {
		if l.lots[0].Direction != sig.Direction {
			return ErrPositionConflict
		}
		// 同方向的重复 ENTRY 不隐式转为加仓
		return fmt.Errorf("position already open in direction %s", sig.Direction)
	}
	l.appendLot(sig)
	return nil
}

func (l *Ledger) pyramidLot(sig model.Signal) error {
	if len(l.lots) == 0 {
		// 空仓时的加仓信号按首仓处理
		l.appendLot(sig)
		return nil
	}
	if l.lots[0].Direction != sig.Direction {
		return ErrPositionConflict
	}
	if len(l.lots) >= l.cfg.MaxLots {
		return ErrLotLimitExceeded
	}
	l.appendLot(sig)
	return nil
}

func (l *Ledger) appendLot(sig model.Signal) {
	lot := model.Lot{
		ID:                l.nextLotID,
		Symbol:            l.symbol,
		Direction:         sig.Direction,
		EntryPrice:        sig.Price,
		EntryTime:         sig.Timestamp,
		Quantity:          l.cfg.PositionSize,
		HighestSinceEntry: sig.Price,
		LowestSinceEntry:  sig.Price,
		Trail:             model.TrailInactive,
	}
	l.nextLotID++
	l.lots = append(l.lots, lot)
}

// closeLotByID 逐 Lot 退出 (跟踪止损路径)
func (l *Ledger) closeLotByID(sig model.Signal) (model.ClosedTrade, bool) {
	for i, lot := range l.lots {
		if lot.ID == sig.LotID {
			l.lots = append(l.lots[:i], l.lots[i+1:]...)
			return l.realize(lot, sig.Price, sig), true
		}
	}
	return model.ClosedTrade{}, false
}

// CloseAll 按配置的顺序 (FIFO/LIFO) 平掉全部 Lot。
// 所有 Lot 使用同一个退出价和时间，各自保留自己的入场价计算盈亏：
// 这是对金字塔持仓的对称整体退出，不支持部分退出。
func (l *Ledger) CloseAll(price float64, at time.Time, reason model.ExitReason) []model.ClosedTrade {
	if len(l.lots) == 0 {
		return nil
	}

	order := make([]model.Lot, len(l.lots))
	copy(order, l.lots)
	if !l.cfg.IsFIFO() {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	trades := make([]model.ClosedTrade, 0, len(order))
	for _, lot := range order {
		trades = append(trades, l.realize(lot, price, model.Signal{Timestamp: at, Exit: reason}))
	}
	l.lots = l.lots[:0]
	return trades
}

func (l *Ledger) realize(lot model.Lot, exitPrice float64, sig model.Signal) model.ClosedTrade {
	var gross float64
	if lot.Direction == model.DirLong {
		gross = (exitPrice - lot.EntryPrice) * lot.Quantity
	} else {
		gross = (lot.EntryPrice - exitPrice) * lot.Quantity
	}
	fees := (lot.EntryPrice + exitPrice) * lot.Quantity * l.feeRate

	pct := 0.0
	if lot.EntryPrice != 0 {
		pct = gross / (lot.EntryPrice * lot.Quantity) * 100
	}

	return model.ClosedTrade{
		Symbol:     l.symbol,
		Direction:  lot.Direction,
		EntryPrice: lot.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   lot.Quantity,
		EntryTime:  lot.EntryTime,
		ExitTime:   sig.Timestamp,
		Pnl:        gross - fees,
		PnlPercent: pct,
		Fees:       fees,
		ExitReason: sig.Exit,
	}
}

// UpdateLot 以 ID 替换 Lot (trailing engine 更新极值和止损价后写回)
func (l *Ledger) UpdateLot(lot model.Lot) {
	for i := range l.lots {
		if l.lots[i].ID == lot.ID {
			l.lots[i] = lot
			return
		}
	}
}

// Lots 返回未平仓 Lot 的副本，防止外部修改
func (l *Ledger) Lots() []model.Lot {
	out := make([]model.Lot, len(l.lots))
	copy(out, l.lots)
	return out
}

func (l *Ledger) LotCount() int {
	return len(l.lots)
}

func (l *Ledger) Open() bool {
	return len(l.lots) > 0
}

// Direction 当前持仓方向，空仓时返回 DirFlat
func (l *Ledger) Direction() model.Direction {
	if len(l.lots) == 0 {
		return model.DirFlat
	}
	return l.lots[0].Direction
}

// AvgEntry 数量加权的平均入场价
func (l *Ledger) AvgEntry() float64 {
	var notional, qty float64
	for _, lot := range l.lots {
		notional += lot.EntryPrice * lot.Quantity
		qty += lot.Quantity
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// MarkToMarket 按给定价格计算未实现盈亏
func (l *Ledger) MarkToMarket(price float64) float64 {
	var upl float64
	for _, lot := range l.lots {
		if lot.Direction == model.DirLong {
			upl += (price - lot.EntryPrice) * lot.Quantity
		} else {
			upl += (lot.EntryPrice - price) * lot.Quantity
		}
	}
	return upl
}
