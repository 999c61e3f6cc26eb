package service

import "strings"

// WarmupBuffer 在最慢指标周期之上额外等待的 K 线数，保证数值稳定
const WarmupBuffer = 10

// 指标族标记。参数键 (含嵌套路径) 必须同时命中一个指标族标记
// 和一个周期标记，其数值才会被计入预热期。
var warmupFamilyTokens = []string{
	"ema", "sma", "wma", "macd", "rsi", "atr", "supertrend", "adx", "stoch",
}

var warmupPeriodTokens = []string{
	"period", "fast", "slow", "lookback", "window", "length",
}

// WarmupPeriod 计算信号可信前必须消费的前导 K 线数。
// 纯函数：对参数树做递归结构化扫描，取所有命中的周期参数的最大值
// 加上稳定缓冲；没有命中任何指标参数时只返回缓冲值。
// 不假设固定 schema —— 新指标参数自动被纳入。
func WarmupPeriod(params map[string]any) int {
	maxPeriod := 0
	walkParams("", params, &maxPeriod)
	return maxPeriod + WarmupBuffer
}

func walkParams(path string, node any, maxPeriod *int) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			walkParams(path+"."+strings.ToLower(key), child, maxPeriod)
		}
	case []any:
		for _, child := range v {
			walkParams(path, child, maxPeriod)
		}
	default:
		if !warmupKeyMatches(path) {
			return
		}
		if n, ok := asPositiveInt(v); ok && n > *maxPeriod {
			*maxPeriod = n
		}
	}
}

func warmupKeyMatches(path string) bool {
	family := false
	for _, tok := range warmupFamilyTokens {
		if strings.Contains(path, tok) {
			family = true
			break
		}
	}
	if !family {
		return false
	}
	for _, tok := range warmupPeriodTokens {
		if strings.Contains(path, tok) {
			return true
		}
	}
	return false
}

// viper 的 yaml 解析会产生 int / int64 / float64 混合的数值叶子
func asPositiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n, true
		}
	case int64:
		if n > 0 {
			return int(n), true
		}
	case float64:
		if n > 0 {
			return int(n), true
		}
	}
	return 0, false
}
