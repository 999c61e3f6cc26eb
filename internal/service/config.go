// internal/service/config.go
package service

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 运行模式
const (
	ModeBacktest = "backtest"
	ModePaper    = "paper"
)

// TrailingConfig 跟踪止损子配置
type TrailingConfig struct {
	Enabled bool
	Mode    string // "atr" 或 "percent"

	// 浮盈达到入场价的该比例后激活 (INACTIVE -> ARMED)
	ActivationProfit float64

	AtrMultiplier float64 // atr 模式: stop = extreme -/+ ATR*multiplier
	Percentage    float64 // percent 模式: stop = extreme * (1 -/+ percentage)

	// 止损价落后于极值价的最大绝对距离；0 表示不限制
	MaxTrailDistance float64
}

// StrategyConfig 定义了策略启动参数。校验通过后不再修改。
type StrategyConfig struct {
	Name string // 策略变体: ema_gap_atr / advanced_atr / price_action

	EmaFastPeriod int
	EmaSlowPeriod int

	RsiPeriod    int
	RsiEntryMin  float64 // 入场 RSI 区间下限 (0 表示不限)
	RsiEntryMax  float64 // 入场 RSI 区间上限 (0 视为 100)
	RsiExitLong  float64 // 多头 RSI 退出阈值 (0 表示禁用)
	RsiExitShort float64 // 空头 RSI 退出阈值 (0 表示禁用)

	AtrPeriod           int
	AtrExpansionRatio   float64 // 入场要求 ATR/参考ATR 的最小比值 (0 表示禁用)
	AtrDeclineThreshold float64 // ATR 相对峰值回落超过该比例即平仓 (0 表示禁用)

	MacdFastPeriod   int
	MacdSlowPeriod   int
	MacdSignalPeriod int

	SupertrendPeriod     int
	SupertrendMultiplier float64

	MaxLots             int
	PyramidingEnabled   bool
	PyramidAtrExpansion float64 // 加仓要求 ATR 相对参考值的最小扩张比例

	ExitMode      string // "FIFO" 或 "LIFO"
	DirectionMode string // "long" / "short" / "both"

	PositionSize float64 // 每个 Lot 的数量
	Capital      float64
	MaxLossPct   float64

	// 可选的当日强制平仓时间 "HH:MM"，空字符串表示禁用
	MisExitTime string
	CncExitTime string

	Trailing TrailingConfig
}

// AllowLong / AllowShort 解析 DirectionMode (空值等价于 both)
func (c *StrategyConfig) AllowLong() bool {
	return c.DirectionMode == "" || strings.EqualFold(c.DirectionMode, "long") || strings.EqualFold(c.DirectionMode, "both")
}

func (c *StrategyConfig) AllowShort() bool {
	return c.DirectionMode == "" || strings.EqualFold(c.DirectionMode, "short") || strings.EqualFold(c.DirectionMode, "both")
}

// IsFIFO - 空值默认 FIFO
func (c *StrategyConfig) IsFIFO() bool {
	return !strings.EqualFold(c.ExitMode, "LIFO")
}

// InstanceConfig 每个交易实例 (一个 Symbol) 的完整配置
type InstanceConfig struct {
	Symbol    string
	Timeframe string
	Strategy  StrategyConfig

	// 原始策略参数树 (viper 解析结果)，供 Warm-up Calculator 做结构化扫描。
	// 新增指标参数无需改动任何代码即可被纳入预热期计算。
	Params map[string]any `mapstructure:"-"`
}

// BacktestConfig 回测运行参数
type BacktestConfig struct {
	Start       string
	End         string
	DataDir     string  // CSV K 线目录
	Concurrency int     // 并发回测的 Symbol 数上限
	FeeRate     float64 // 每次成交的手续费率，例如 0.0005
}

// ExchangeConfig 定义了交易所的连接信息 (仅 paper 模式使用)
type ExchangeConfig struct {
	Name  string
	WSURL string
}

type Config struct {
	Mode      string                    `mapstructure:"Mode"` // "backtest" 或 "paper"
	Backtest  BacktestConfig            `mapstructure:"Backtest"`
	Exchange  ExchangeConfig            `mapstructure:"Exchange"`
	Instances map[string]InstanceConfig `mapstructure:"Instances"`
}

// LoadConfig 读取并解析配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// 保留每个实例的原始参数树，Warm-up Calculator 依赖它做通用扫描
	for name, inst := range cfg.Instances {
		sub := viper.Sub("instances." + name + ".strategy")
		if sub != nil {
			inst.Params = sub.AllSettings()
			cfg.Instances[name] = inst
		}
	}

	return &cfg, nil
}

// StrategyParams 将类型化配置展开为参数树。
// 直接以库方式构造 Orchestrator (没有 viper 原始树) 时使用。
func StrategyParams(cfg *StrategyConfig) map[string]any {
	return map[string]any{
		"emaFastPeriod":    cfg.EmaFastPeriod,
		"emaSlowPeriod":    cfg.EmaSlowPeriod,
		"rsiPeriod":        cfg.RsiPeriod,
		"atrPeriod":        cfg.AtrPeriod,
		"macdFastPeriod":   cfg.MacdFastPeriod,
		"macdSlowPeriod":   cfg.MacdSlowPeriod,
		"macdSignalPeriod": cfg.MacdSignalPeriod,
		"supertrendPeriod": cfg.SupertrendPeriod,
	}
}
