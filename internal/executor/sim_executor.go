package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/internal/model"
)

// SimConfig 模拟执行器配置
type SimConfig struct {
	InitialCapital float64
	FeeRate        float64 // 每次成交的手续费率
}

// SimulatedExecutor 实现了 Executor 接口。
// 回测/纸面交易模式下的无延迟成交：总是按传入价格全量成交。
type SimulatedExecutor struct {
	cfg    SimConfig
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	balance   float64
	equity    float64
	maxEquity float64
	fillCount int
}

func NewSimulatedExecutor(cfg SimConfig, logger *zap.SugaredLogger) *SimulatedExecutor {
	return &SimulatedExecutor{
		cfg:       cfg,
		logger:    logger,
		balance:   cfg.InitialCapital,
		equity:    cfg.InitialCapital,
		maxEquity: cfg.InitialCapital,
	}
}

// PlaceOrder 按信号价格立即成交
func (e *SimulatedExecutor) PlaceOrder(ctx context.Context, dir model.Direction, quantity, price float64) (model.FillResult, error) {
	if err := ctx.Err(); err != nil {
		return model.FillResult{}, err
	}
	if quantity <= 0 || price <= 0 {
		return model.FillResult{}, fmt.Errorf("invalid order: qty=%.6f price=%.6f", quantity, price)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fee := quantity * price * e.cfg.FeeRate
	e.fillCount++

	e.logger.Debugw("sim order filled",
		"direction", dir.String(), "qty", quantity, "price", price, "fee", fee)

	return model.FillResult{
		Price:     price,
		Quantity:  quantity,
		Fee:       fee,
		Timestamp: time.Now(),
	}, nil
}

// RecordRealized 记入已实现盈亏并维护净值高水位
func (e *SimulatedExecutor) RecordRealized(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balance += pnl
	e.equity = e.balance
	if e.equity > e.maxEquity {
		e.maxEquity = e.equity
	}
}

func (e *SimulatedExecutor) Equity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.equity
}

func (e *SimulatedExecutor) MaxEquity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxEquity
}

// FillCount 总成交次数 (诊断用)
func (e *SimulatedExecutor) FillCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fillCount
}
