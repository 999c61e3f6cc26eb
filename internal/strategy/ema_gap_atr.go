package strategy

import (
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
	"strategy-backtester/pkg/ta"
)

// EMAGapATR: 快/慢 EMA 交叉入场，RSI 区间和可选 ATR 扩张门控，
// 同方向 ATR 扩张加仓，反向交叉平仓 (EMA_FLIP)。
type EMAGapATR struct {
	baseStrategy
}

func newEMAGapATR(cfg *service.StrategyConfig, logger *zap.SugaredLogger) *EMAGapATR {
	return &EMAGapATR{baseStrategy: newBaseStrategy(cfg, logger)}
}

func (s *EMAGapATR) Name() string { return StrategyEMAGapATR }

func (s *EMAGapATR) Evaluate(ec *EvalContext) Evaluation {
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
		if sig := s.evaluateExit(pos, c, rsi, rsiOK, atr, atrOK, opposite, model.ExitEMAFlip); sig != nil {
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

	switch {
	case crossUp && s.cfg.AllowLong():
		if !s.rsiEntryOK(rsi, rsiOK, model.DirLong) {
			d.Blocked = "rsi_out_of_band"
			return Evaluation{Diagnostics: d}
		}
		if !s.atrExpansionOK(atr, atrOK) {
			d.Blocked = "atr_not_expanded"
			return Evaluation{Diagnostics: d}
		}
		sig := entrySignal(model.SignalEntry, model.DirLong, c, "EMA crossover up")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}

	case crossDown && s.cfg.AllowShort():
		if !s.rsiEntryOK(rsi, rsiOK, model.DirShort) {
			d.Blocked = "rsi_out_of_band"
			return Evaluation{Diagnostics: d}
		}
		if !s.atrExpansionOK(atr, atrOK) {
			d.Blocked = "atr_not_expanded"
			return Evaluation{Diagnostics: d}
		}
		sig := entrySignal(model.SignalEntry, model.DirShort, c, "EMA crossover down")
		return Evaluation{Signals: []model.Signal{sig}, Diagnostics: d}
	}

	d.Blocked = "no_crossover"
	return Evaluation{Diagnostics: d}
}
