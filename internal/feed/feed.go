// Package feed K 线数据源边界。
// 回测使用 CSV/内存数据源，纸面交易使用交易所 WebSocket 流。
package feed

import (
	"context"
	"errors"
	"time"

	"strategy-backtester/internal/model"
)

// ErrNoData 区间内没有任何 K 线
var ErrNoData = errors.New("no candles in range")

// Feed 历史 K 线数据源。返回值按时间升序，无重复时间戳。
type Feed interface {
	GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error)
}

// SliceFeed 内存数据源，测试和程序化构造场景使用
type SliceFeed struct {
	Candles []model.Candle
}

func (f *SliceFeed) GetHistoricalCandles(_ context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range f.Candles {
		if c.Symbol != "" && c.Symbol != symbol {
			continue
		}
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return Sanitize(out), nil
}

// Sanitize 防御性清洗: 丢弃时间戳不递增或重复的 K 线。
// 大的时间缺口不视为错误，按原样保留。
func Sanitize(candles []model.Candle) []model.Candle {
	if len(candles) < 2 {
		return candles
	}
	out := candles[:1]
	for _, c := range candles[1:] {
		if !c.Timestamp.After(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}
