package strategy

import (
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
	"strategy-backtester/pkg/ta"
)

// PriceAction: Supertrend 方向翻转入场，MACD 柱状图同向确认，
// 反向翻转平仓 (OPPOSITE_SIGNAL)。
type PriceAction struct {
	baseStrategy
}

func newPriceAction(cfg *service.StrategyConfig, logger *zap.SugaredLogger) *PriceAction {
	return &PriceAction{baseStrategy: newBaseStrategy(cfg, logger)}
}

func (s *PriceAction) Name() string { return StrategyPriceAction }

func (s *PriceAction) Evaluate(ec *EvalContext) Evaluation {
	var d Diagnostics
	snap := ec.Snapshot

	stDir, okD := snap.Value(ta.IndSupertrendDir)
	stDirPrev, okDP := snap.PrevValue(ta.IndSupertrendDir)
	if !okD || !okDP || stDir == 0 || stDirPrev == 0 {
		d.Blocked = "supertrend_not_ready"
		return Evaluation{Diagnostics: d}
	}

	hist, histOK := snap.Value(ta.IndMacdHist)
	rsi, rsiOK := snap.Value(ta.IndRsi)
	atr, atrOK := snap.Value(ta.IndAtr)
	s.trackRefAtr(atr, atrOK)

	flipUp := stDirPrev < 0 && stDir > 0
	flipDown := stDirPrev > 0 && stDir < 0

	d = Diagnostics{Rsi: rsi, Atr: atr, CrossedUp: flipUp, CrossedDown: flipDown}

	c := ec.Candle

	if pos := ec.Position; pos != nil && pos.LotCount > 0 {
		opposite := (pos.Direction == model.DirLong && flipDown) ||
			(pos.Direction == model.DirShort && flipUp)
		if sig := s.evaluateExit(pos, c, rsi, rsiOK, atr, atrOK, opposite, model.ExitOppositeSignal); sig != nil {
			return Evaluation{Signals: []model.Signal{*sig}, Diagnostics: d}
		}

		trendAligned := (pos.Direction == model.DirLong && stDir > 0) ||
			(pos.Direction == model.DirShort && stDir < 0)
		if s.pyramidOK(pos, atr, atrOK, rsi, rsiOK, trendAligned) {
			sig := entrySignal(model.SignalPyramid, pos.Direction, c, "ATR expansion add-on")
			return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}
		}

		d.Blocked = "position_held"
		return Evaluation{Diagnostics: d}
	}

	// MACD 柱状图确认: 未配置 MACD 时不做确认
	confirmLong := !histOK || hist > 0
	confirmShort := !histOK || hist < 0

	switch {
	case flipUp && confirmLong && s.cfg.AllowLong() && s.rsiEntryOK(rsi, rsiOK, model.DirLong):
		sig := entrySignal(model.SignalEntry, model.DirLong, c, "Supertrend flip up with MACD confirmation")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}

	case flipDown && confirmShort && s.cfg.AllowShort() && s.rsiEntryOK(rsi, rsiOK, model.DirShort):
		sig := entrySignal(model.SignalEntry, model.DirShort, c, "Supertrend flip down with MACD confirmation")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}
	}

	d.Blocked = "no_flip"
	return Evaluation{Diagnostics: d}
}
