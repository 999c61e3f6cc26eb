package strategy

import (
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// refAtrAlpha 参考 ATR 慢速跟踪的平滑系数
const refAtrAlpha = 0.1

// baseStrategy 三个策略变体共享的入场门控和退出链。
// 变体只决定触发条件 (交叉/扩张/翻转)，门控和优先级规则一致。
type baseStrategy struct {
	cfg    *service.StrategyConfig
	logger *zap.SugaredLogger

	// 入场 ATR 扩张比较的慢速基准
	refAtr float64

	// 当日强制平仓时间 (分钟数)，-1 表示禁用
	misCut int
	cncCut int
}

func newBaseStrategy(cfg *service.StrategyConfig, logger *zap.SugaredLogger) baseStrategy {
	b := baseStrategy{cfg: cfg, logger: logger, misCut: -1, cncCut: -1}
	if cfg.MisExitTime != "" {
		if m, err := service.ParseClock(cfg.MisExitTime); err == nil {
			b.misCut = m
		}
	}
	if cfg.CncExitTime != "" {
		if m, err := service.ParseClock(cfg.CncExitTime); err == nil {
			b.cncCut = m
		}
	}
	return b
}

// trackRefAtr 每根 K 线更新入场参考 ATR
func (b *baseStrategy) trackRefAtr(atr float64, ok bool) {
	if !ok || atr <= 0 {
		return
	}
	if b.refAtr == 0 {
		b.refAtr = atr
		return
	}
	b.refAtr += (atr - b.refAtr) * refAtrAlpha
}

// rsiEntryOK 入场 RSI 区间门控，空头取镜像区间
func (b *baseStrategy) rsiEntryOK(rsi float64, ok bool, dir model.Direction) bool {
	if b.cfg.RsiPeriod <= 0 {
		return true
	}
	if !ok {
		return false
	}
	lo := b.cfg.RsiEntryMin
	hi := b.cfg.RsiEntryMax
	if hi <= 0 {
		hi = 100
	}
	if dir == model.DirShort {
		lo, hi = 100-hi, 100-lo
	}
	return rsi >= lo && rsi <= hi
}

// atrExpansionOK 入场 ATR 扩张门控: 当前 ATR 必须达到参考 ATR 的配置倍数
func (b *baseStrategy) atrExpansionOK(atr float64, ok bool) bool {
	if b.cfg.AtrExpansionRatio <= 0 {
		return true
	}
	return ok && b.refAtr > 0 && atr >= b.refAtr*b.cfg.AtrExpansionRatio
}

// pyramidOK 加仓门控: 同方向趋势延续且 ATR 相对最近一次入场扩张
func (b *baseStrategy) pyramidOK(pos *PositionContext, atr float64, atrOK bool, rsi float64, rsiOK bool, trendAligned bool) bool {
	if !b.cfg.PyramidingEnabled || pos.LotCount >= b.cfg.MaxLots {
		return false
	}
	if !trendAligned || !atrOK || pos.RefAtr <= 0 {
		return false
	}
	if atr < pos.RefAtr*(1+b.cfg.PyramidAtrExpansion) {
		return false
	}
	return b.rsiEntryOK(rsi, rsiOK, pos.Direction)
}

// timeExitDue 检查当日强制平仓时间是否已到
func (b *baseStrategy) timeExitDue(c model.Candle) bool {
	minutes := c.Timestamp.Hour()*60 + c.Timestamp.Minute()
	if b.misCut >= 0 && minutes >= b.misCut {
		return true
	}
	if b.cncCut >= 0 && minutes >= b.cncCut {
		return true
	}
	return false
}

// evaluateExit 固定优先级退出链，首个命中的触发器胜出并决定 exitReason。
// 优先级: (1) ATR 回落 (2) RSI 退出区间 (3) 反向触发 (4) 时间平仓。
// 跟踪止损由 orchestrator 在此之前合并，优先级最高。
func (b *baseStrategy) evaluateExit(
	pos *PositionContext,
	c model.Candle,
	rsi float64, rsiOK bool,
	atr float64, atrOK bool,
	oppositeHit bool, oppositeReason model.ExitReason,
) *model.Signal {

	exit := func(reason model.ExitReason, note string) *model.Signal {
		return &model.Signal{
			Symbol:    c.Symbol,
			Type:      model.SignalExit,
			Direction: pos.Direction,
			Price:     c.Close,
			Timestamp: c.Timestamp,
			Reason:    note,
			Exit:      reason,
		}
	}

	if b.cfg.AtrDeclineThreshold > 0 && atrOK && pos.PeakAtr > 0 &&
		atr <= pos.PeakAtr*(1-b.cfg.AtrDeclineThreshold) {
		return exit(model.ExitATRDecline, "ATR declined beyond threshold from peak")
	}

	if rsiOK {
		if pos.Direction == model.DirLong && b.cfg.RsiExitLong > 0 && rsi >= b.cfg.RsiExitLong {
			return exit(model.ExitRSI, "RSI crossed exit band")
		}
		if pos.Direction == model.DirShort && b.cfg.RsiExitShort > 0 && rsi <= b.cfg.RsiExitShort {
			return exit(model.ExitRSI, "RSI crossed exit band")
		}
	}

	if oppositeHit {
		return exit(oppositeReason, "opposite-direction trigger")
	}

	if b.timeExitDue(c) {
		return exit(model.ExitTime, "intraday time cutoff reached")
	}

	return nil
}

// entrySignal 构造开仓/加仓信号
func entrySignal(t model.SignalType, dir model.Direction, c model.Candle, note string) model.Signal {
	return model.Signal{
		Symbol:    c.Symbol,
		Type:      t,
		Direction: dir,
		Price:     c.Close,
		Timestamp: c.Timestamp,
		Reason:    note,
	}
}
