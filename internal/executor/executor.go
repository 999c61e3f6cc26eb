package executor

import (
	"context"

	"strategy-backtester/internal/model"
)

// Executor 是订单执行边界的通用接口。
// 回测模式下由 SimulatedExecutor 按信号价格成交；
// 接入实盘时替换实现即可，核心不感知差异。
type Executor interface {
	// 下单并返回成交结果
	PlaceOrder(ctx context.Context, dir model.Direction, quantity, price float64) (model.FillResult, error)

	// 记录一笔已实现盈亏，更新账户净值
	RecordRealized(pnl float64)

	// 当前账户净值
	Equity() float64

	// 历史最高账户净值
	MaxEquity() float64
}
