package strategy

import (
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
	"strategy-backtester/pkg/ta"
)

// AdvancedATR: 波动率驱动变体。不要求 EMA 交叉瞬间入场，
// 而是在 EMA 趋势已对齐时由 ATR 扩张确认突破入场，RSI 提供动量过滤。
// 反向交叉平仓使用 OPPOSITE_SIGNAL，ATR 回落是主要退出路径。
type AdvancedATR struct {
	baseStrategy
}

func newAdvancedATR(cfg *service.StrategyConfig, logger *zap.SugaredLogger) *AdvancedATR {
	return &AdvancedATR{baseStrategy: newBaseStrategy(cfg, logger)}
}

func (s *AdvancedATR) Name() string { return StrategyAdvancedATR }

func (s *AdvancedATR) Evaluate(ec *EvalContext) Evaluation {
	var d Diagnostics
	snap := ec.Snapshot

	fast, okF := snap.Value(ta.IndEmaFast)
	slow, okS := snap.Value(ta.IndEmaSlow)
	fastPrev, okFP := snap.PrevValue(ta.IndEmaFast)
	slowPrev, okSP := snap.PrevValue(ta.IndEmaSlow)
	if !okF || !okS || !okFP || !okSP {
		d.Blocked = "ema_not_ready"
		return Evaluation{Diagnostics: d}
	}

	rsi, rsiOK := snap.Value(ta.IndRsi)
	atr, atrOK := snap.Value(ta.IndAtr)
	s.trackRefAtr(atr, atrOK)

	crossUp := fastPrev <= slowPrev && fast > slow
	crossDown := fastPrev >= slowPrev && fast < slow

	d = Diagnostics{
		EmaFast: fast, EmaSlow: slow,
		EmaFastPrev: fastPrev, EmaSlowPrev: slowPrev,
		Rsi: rsi, Atr: atr,
		CrossedUp: crossUp, CrossedDown: crossDown,
	}

	c := ec.Candle

	if pos := ec.Position; pos != nil && pos.LotCount > 0 {
		opposite := (pos.Direction == model.DirLong && crossDown) ||
			(pos.Direction == model.DirShort && crossUp)
		if sig := s.evaluateExit(pos, c, rsi, rsiOK, atr, atrOK, opposite, model.ExitOppositeSignal); sig != nil {
			return Evaluation{Signals: []model.Signal{*sig}, Diagnostics: d}
		}

		trendAligned := (pos.Direction == model.DirLong && fast > slow) ||
			(pos.Direction == model.DirShort && fast < slow)
		if s.pyramidOK(pos, atr, atrOK, rsi, rsiOK, trendAligned) {
			sig := entrySignal(model.SignalPyramid, pos.Direction, c, "ATR expansion add-on")
			return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}
		}

		d.Blocked = "position_held"
		return Evaluation{Diagnostics: d}
	}

	// 入场必须有 ATR 扩张确认；没有配置扩张比时该变体不产生入场
	if !atrOK || !s.atrExpansionOK(atr, atrOK) || s.cfg.AtrExpansionRatio <= 0 {
		d.Blocked = "atr_not_expanded"
		return Evaluation{Diagnostics: d}
	}

	momentumLong := !rsiOK || rsi > 50
	momentumShort := !rsiOK || rsi < 50

	switch {
	case fast > slow && momentumLong && s.cfg.AllowLong() && s.rsiEntryOK(rsi, rsiOK, model.DirLong):
		sig := entrySignal(model.SignalEntry, model.DirLong, c, "ATR breakout with aligned trend")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}

	case fast < slow && momentumShort && s.cfg.AllowShort() && s.rsiEntryOK(rsi, rsiOK, model.DirShort):
		sig := entrySignal(model.SignalEntry, model.DirShort, c, "ATR breakout with aligned trend")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}
	}

	d.Blocked = "trend_not_aligned"
	return Evaluation{Diagnostics: d}
}
