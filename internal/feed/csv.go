package feed

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// CSVFeed 从目录中读取 {symbol}_{timeframe}.csv 文件。
// 行格式: timestamp_ms,open,high,low,close,volume。表头行自动跳过。
type CSVFeed struct {
	Dir    string
	logger *zap.SugaredLogger
}

func NewCSVFeed(dir string, logger *zap.SugaredLogger) *CSVFeed {
	return &CSVFeed{Dir: dir, logger: logger}
}

func (f *CSVFeed) GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	path := filepath.Join(f.Dir, fmt.Sprintf("%s_%s.csv", symbol, timeframe))
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer file.Close()

	// CSV reader 对带引号字段保持健壮
	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	candles := make([]model.Candle, 0, 1_000)
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(rec) < 6 {
			skipped++
			continue
		}

		ms, err := service.StringToInt64(rec[0])
		if err != nil {
			// 表头或坏行
			skipped++
			continue
		}
		ts := time.UnixMilli(ms).UTC()
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}

		open, err1 := service.StringToFloat(rec[1])
		high, err2 := service.StringToFloat(rec[2])
		low, err3 := service.StringToFloat(rec[3])
		closeP, err4 := service.StringToFloat(rec[4])
		volume, err5 := service.StringToFloat(rec[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			skipped++
			continue
		}

		candles = append(candles, model.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
		})
	}

	if skipped > 0 {
		f.logger.Debugw("skipped malformed csv rows", "file", path, "count", skipped)
	}
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	return Sanitize(candles), nil
}
