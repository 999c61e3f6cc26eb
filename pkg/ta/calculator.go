package ta

import (
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
)

// 指标输出名。策略层通过这些键查询 Snapshot。
const (
	IndEmaFast       = "ema_fast"
	IndEmaSlow       = "ema_slow"
	IndRsi           = "rsi"
	IndAtr           = "atr"
	IndMacd          = "macd"
	IndMacdSignal    = "macd_signal"
	IndMacdHist      = "macd_hist"
	IndSupertrend    = "supertrend"
	IndSupertrendDir = "supertrend_dir"
)

// Params 指标周期参数，由策略配置映射而来
type Params struct {
	EmaFastPeriod    int
	EmaSlowPeriod    int
	RsiPeriod        int
	AtrPeriod        int
	MacdFastPeriod   int
	MacdSlowPeriod   int
	MacdSignalPeriod int
	SupertrendPeriod int
	SupertrendMult   float64
}

// SeriesInput 指标计算的原始输入序列
type SeriesInput struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Provider 计算一族指标序列。输出按名字合并进 Snapshot。
type Provider struct {
	Name    string
	MinBars func(p Params) int
	Compute func(in SeriesInput, p Params) map[string][]float64
}

// Registry 指标提供者注册表。在启动时显式构造并注入，
// 不使用包级单例，测试可以构造隔离的注册表。
type Registry struct {
	providers []Provider
}

func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// NewRegistry 构造带标准指标集 (EMA/RSI/ATR/MACD/Supertrend) 的注册表
func NewRegistry() *Registry {
	r := &Registry{}

	r.Register(Provider{
		Name:    "ema",
		MinBars: func(p Params) int { return maxInt(p.EmaFastPeriod, p.EmaSlowPeriod) + 1 },
		Compute: func(in SeriesInput, p Params) map[string][]float64 {
			if p.EmaFastPeriod <= 0 || p.EmaSlowPeriod <= 0 {
				return nil
			}
			return map[string][]float64{
				IndEmaFast: talib.Ema(in.Close, p.EmaFastPeriod),
				IndEmaSlow: talib.Ema(in.Close, p.EmaSlowPeriod),
			}
		},
	})

	r.Register(Provider{
		Name:    "rsi",
		MinBars: func(p Params) int { return p.RsiPeriod + 1 },
		Compute: func(in SeriesInput, p Params) map[string][]float64 {
			if p.RsiPeriod <= 0 {
				return nil
			}
			return map[string][]float64{IndRsi: talib.Rsi(in.Close, p.RsiPeriod)}
		},
	})

	r.Register(Provider{
		Name:    "atr",
		MinBars: func(p Params) int { return p.AtrPeriod + 1 },
		Compute: func(in SeriesInput, p Params) map[string][]float64 {
			if p.AtrPeriod <= 0 {
				return nil
			}
			return map[string][]float64{IndAtr: talib.Atr(in.High, in.Low, in.Close, p.AtrPeriod)}
		},
	})

	r.Register(Provider{
		Name:    "macd",
		MinBars: func(p Params) int { return p.MacdSlowPeriod + p.MacdSignalPeriod + 1 },
		Compute: func(in SeriesInput, p Params) map[string][]float64 {
			if p.MacdFastPeriod <= 0 || p.MacdSlowPeriod <= 0 || p.MacdSignalPeriod <= 0 {
				return nil
			}
			macd, signal, hist := talib.Macd(in.Close, p.MacdFastPeriod, p.MacdSlowPeriod, p.MacdSignalPeriod)
			return map[string][]float64{
				IndMacd:       macd,
				IndMacdSignal: signal,
				IndMacdHist:   hist,
			}
		},
	})

	r.Register(Provider{
		Name:    "supertrend",
		MinBars: func(p Params) int { return p.SupertrendPeriod + 2 },
		Compute: func(in SeriesInput, p Params) map[string][]float64 {
			if p.SupertrendPeriod <= 0 || p.SupertrendMult <= 0 {
				return nil
			}
			line, dir := Supertrend(in.High, in.Low, in.Close, p.SupertrendPeriod, p.SupertrendMult)
			return map[string][]float64{
				IndSupertrend:    line,
				IndSupertrendDir: dir,
			}
		},
	})

	return r
}

// MaxHistory 保留的历史 K 线上限。超过后做 FIFO 截断。
const MaxHistory = 1000

// Calculator 负责管理单个 Symbol 的历史数据和指标计算。
// 每根新 K 线到达时重算注册表中所有满足最小历史长度的指标。
type Calculator struct {
	mu     sync.RWMutex
	reg    *Registry
	params Params
	logger *zap.SugaredLogger

	symbol string
	in     SeriesInput
	series map[string][]float64
	last   time.Time
}

// NewCalculator 初始化技术指标计算器
func NewCalculator(reg *Registry, params Params, logger *zap.SugaredLogger) *Calculator {
	return &Calculator{
		reg:    reg,
		params: params,
		logger: logger,
		series: make(map[string][]float64),
	}
}

// Update 追加一根已完成的 K 线并重算指标
func (c *Calculator) Update(candle model.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.symbol = candle.Symbol
	c.last = candle.Timestamp

	c.in.Open = append(c.in.Open, candle.Open)
	c.in.High = append(c.in.High, candle.High)
	c.in.Low = append(c.in.Low, candle.Low)
	c.in.Close = append(c.in.Close, candle.Close)
	c.in.Volume = append(c.in.Volume, candle.Volume)

	if len(c.in.Close) > MaxHistory {
		c.in.Open = c.in.Open[len(c.in.Open)-MaxHistory:]
		c.in.High = c.in.High[len(c.in.High)-MaxHistory:]
		c.in.Low = c.in.Low[len(c.in.Low)-MaxHistory:]
		c.in.Close = c.in.Close[len(c.in.Close)-MaxHistory:]
		c.in.Volume = c.in.Volume[len(c.in.Volume)-MaxHistory:]
	}

	for _, p := range c.reg.providers {
		if len(c.in.Close) < p.MinBars(c.params) {
			continue
		}
		for name, out := range p.Compute(c.in, c.params) {
			c.series[name] = out
		}
	}
}

// BarCount 已消费的 K 线数量 (截断后)
func (c *Calculator) BarCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.in.Close)
}

// Snapshot 返回所有已就绪指标的当前值和前一根 K 线的值，
// 供策略层做交叉检测
func (c *Calculator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur := make(map[string]float64, len(c.series))
	prev := make(map[string]float64, len(c.series))
	for name, s := range c.series {
		if len(s) == 0 {
			continue
		}
		cur[name] = s[len(s)-1]
		if len(s) > 1 {
			prev[name] = s[len(s)-2]
		}
	}
	return &Snapshot{Symbol: c.symbol, Time: c.last, cur: cur, prev: prev}
}

// Snapshot 某一时刻全部指标的当前值和前值
type Snapshot struct {
	Symbol string
	Time   time.Time
	cur    map[string]float64
	prev   map[string]float64
}

// NewSnapshot 直接构造快照 (测试和外部分析工具使用)
func NewSnapshot(symbol string, t time.Time, cur, prev map[string]float64) *Snapshot {
	return &Snapshot{Symbol: symbol, Time: t, cur: cur, prev: prev}
}

func (s *Snapshot) Value(name string) (float64, bool) {
	v, ok := s.cur[name]
	return v, ok
}

func (s *Snapshot) PrevValue(name string) (float64, bool) {
	v, ok := s.prev[name]
	return v, ok
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
