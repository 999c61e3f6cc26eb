package strategy

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"strategy-backtester/internal/service"
)

// 策略变体名。配置中的 strategy.name 必须是其中之一。
const (
	StrategyEMAGapATR   = "ema_gap_atr"
	StrategyAdvancedATR = "advanced_atr"
	StrategyPriceAction = "price_action"
)

// New 按策略名构造 Evaluator。每个 Symbol 一个实例。
func New(cfg *service.StrategyConfig, logger *zap.SugaredLogger) (Evaluator, error) {
	switch strings.ToLower(cfg.Name) {
	case StrategyEMAGapATR:
		return newEMAGapATR(cfg, logger), nil
	case StrategyAdvancedATR:
		return newAdvancedATR(cfg, logger), nil
	case StrategyPriceAction:
		return newPriceAction(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy variant %q", cfg.Name)
	}
}
