package backtest

import (
	"math"
	"sort"
	"time"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// ProfitFactorCapped 亏损为零时盈亏比的封顶哨兵值
const ProfitFactorCapped = 999.0

// ComputeResult 从成交记录与权益曲线聚合绩效指标。
// 零成交时全部指标为零值，不报错。
func ComputeResult(
	symbol, timeframe string,
	capital float64,
	trades []model.ClosedTrade,
	equity []model.EquityPoint,
) *model.BacktestResult {

	res := &model.BacktestResult{
		Symbol:      symbol,
		Trades:      trades,
		EquityCurve: equity,
		ExitReasons: make(map[model.ExitReason]model.ExitReasonStat),
	}

	var grossWin, grossLoss float64
	for _, t := range trades {
		res.TotalTrades++
		res.TotalReturn += t.Pnl
		// 平手单只计入总数，不落入胜负任一侧
		switch {
		case t.Pnl > 0:
			res.WinningTrades++
			grossWin += t.Pnl
		case t.Pnl < 0:
			res.LosingTrades++
			grossLoss += -t.Pnl
		}

		stat := res.ExitReasons[t.ExitReason]
		stat.Reason = t.ExitReason
		stat.Count++
		stat.TotalPnl += t.Pnl
		res.ExitReasons[t.ExitReason] = stat
	}
	for reason, stat := range res.ExitReasons {
		stat.AvgPnl = stat.TotalPnl / float64(stat.Count)
		res.ExitReasons[reason] = stat
	}

	if res.TotalTrades == 0 {
		return res
	}

	res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	if capital > 0 {
		res.TotalReturnPercentage = res.TotalReturn / capital * 100
	}
	if res.WinningTrades > 0 {
		res.AverageWin = grossWin / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AverageLoss = -grossLoss / float64(res.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		res.ProfitFactor = grossWin / grossLoss
		if res.ProfitFactor > ProfitFactorCapped {
			res.ProfitFactor = ProfitFactorCapped
		}
	case grossWin > 0:
		// 无亏损单时盈亏比无界，取封顶哨兵值
		res.ProfitFactor = ProfitFactorCapped
	}

	res.MaxDrawdown = maxDrawdown(equity)
	res.SharpeRatio = sharpeRatio(equity, timeframe)
	return res
}

// maxDrawdown 权益曲线的峰值回撤百分比
func maxDrawdown(equity []model.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio 基于逐周期权益收益率的年化夏普 (无风险利率取 0)。
// 收益率标准差为零时返回 0。
func sharpeRatio(equity []model.EquityPoint, timeframe string) float64 {
	rets := equityReturns(equity)
	if len(rets) < 2 {
		return 0
	}
	m := mean(rets)
	sd := stddev(rets, m)
	if sd == 0 {
		return 0
	}

	periodsPerYear := 1.0
	if d, err := service.ParseIntervalDuration(timeframe); err == nil && d > 0 {
		periodsPerYear = float64(365*24*time.Hour) / float64(d)
	}
	return m / sd * math.Sqrt(periodsPerYear)
}

func equityReturns(equity []model.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		rets = append(rets, (equity[i].Equity-prev)/prev)
	}
	return rets
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// correlation 两条收益率序列的皮尔逊相关系数，按较短长度对齐
func correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// SortedReasons 以固定顺序列出退出原因，便于汇总打印
func SortedReasons(stats map[model.ExitReason]model.ExitReasonStat) []model.ExitReasonStat {
	out := make([]model.ExitReasonStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
