package ta

import "github.com/markcheno/go-talib"

// Supertrend 基于 talib ATR 计算 Supertrend 线和方向。
// dir: +1 上升趋势 (线在价格下方)，-1 下降趋势，前导位置为 0。
// 标准算法: basic band = (high+low)/2 +/- mult*ATR，带 carry-forward 收紧。
func Supertrend(high, low, close []float64, period int, mult float64) (line, dir []float64) {
	n := len(close)
	line = make([]float64, n)
	dir = make([]float64, n)
	if n < period+1 {
		return line, dir
	}

	atr := talib.Atr(high, low, close, period)
	upper := make([]float64, n)
	lower := make([]float64, n)

	// 初始化第一个有效位置
	start := period
	mid := (high[start] + low[start]) / 2
	upper[start] = mid + mult*atr[start]
	lower[start] = mid - mult*atr[start]
	if close[start] > mid {
		dir[start] = 1
		line[start] = lower[start]
	} else {
		dir[start] = -1
		line[start] = upper[start]
	}

	for i := start + 1; i < n; i++ {
		mid := (high[i] + low[i]) / 2
		basicUpper := mid + mult*atr[i]
		basicLower := mid - mult*atr[i]

		// 上轨只收紧不放松，除非价格已突破
		if basicUpper < upper[i-1] || close[i-1] > upper[i-1] {
			upper[i] = basicUpper
		} else {
			upper[i] = upper[i-1]
		}
		if basicLower > lower[i-1] || close[i-1] < lower[i-1] {
			lower[i] = basicLower
		} else {
			lower[i] = lower[i-1]
		}

		if dir[i-1] >= 0 {
			if close[i] < lower[i] {
				dir[i] = -1
				line[i] = upper[i]
			} else {
				dir[i] = 1
				line[i] = lower[i]
			}
		} else {
			if close[i] > upper[i] {
				dir[i] = 1
				line[i] = lower[i]
			} else {
				dir[i] = -1
				line[i] = upper[i]
			}
		}
	}

	return line, dir
}
