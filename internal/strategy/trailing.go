package strategy

import (
	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// StepTrailing 推进单个 Lot 的跟踪止损状态机 (INACTIVE -> ARMED -> TRIGGERED)。
// 纯函数: (lot, candle, atr, cfg) -> (updatedLot, optionalExitSignal)。
// 没有跨 Lot 的顺序依赖，任意数量的 Lot 可以在一次遍历中独立处理。
// atr 模式下 ATR 不可用 (<= 0) 时视为跟踪尚不可用，保持 INACTIVE。
func StepTrailing(lot model.Lot, c model.Candle, atr float64, cfg *service.TrailingConfig) (model.Lot, *model.Signal) {
	if !cfg.Enabled || lot.Trail == model.TrailTriggered {
		return lot, nil
	}

	atrMode := cfg.Mode == "" || cfg.Mode == "atr"

	// 入场以来的极值价始终更新
	if c.High > lot.HighestSinceEntry {
		lot.HighestSinceEntry = c.High
	}
	if lot.LowestSinceEntry == 0 || c.Low < lot.LowestSinceEntry {
		lot.LowestSinceEntry = c.Low
	}

	if lot.Trail == "" {
		lot.Trail = model.TrailInactive
	}

	if lot.Trail == model.TrailInactive {
		if atrMode && atr <= 0 {
			return lot, nil
		}
		var profit float64
		if lot.Direction == model.DirLong {
			profit = (c.Close - lot.EntryPrice) / lot.EntryPrice
		} else {
			profit = (lot.EntryPrice - c.Close) / lot.EntryPrice
		}
		if profit < cfg.ActivationProfit {
			return lot, nil
		}
		lot.Trail = model.TrailArmed
	}

	// ARMED: 重算止损价。止损只朝有利方向移动，从不后退。
	if lot.Direction == model.DirLong {
		var cand float64
		switch {
		case atrMode && atr > 0:
			cand = lot.HighestSinceEntry - atr*cfg.AtrMultiplier
		case !atrMode:
			cand = lot.HighestSinceEntry * (1 - cfg.Percentage)
		default:
			cand = lot.TrailingStop
		}
		if cfg.MaxTrailDistance > 0 && lot.HighestSinceEntry-cand > cfg.MaxTrailDistance {
			cand = lot.HighestSinceEntry - cfg.MaxTrailDistance
		}
		if cand > lot.TrailingStop {
			lot.TrailingStop = cand
		}
		if lot.TrailingStop > 0 && c.Low <= lot.TrailingStop {
			lot.Trail = model.TrailTriggered
			return lot, trailingExit(lot, c)
		}
		return lot, nil
	}

	// SHORT: 镜像逻辑
	var cand float64
	switch {
	case atrMode && atr > 0:
		cand = lot.LowestSinceEntry + atr*cfg.AtrMultiplier
	case !atrMode:
		cand = lot.LowestSinceEntry * (1 + cfg.Percentage)
	default:
		cand = lot.TrailingStop
	}
	if cfg.MaxTrailDistance > 0 && cand-lot.LowestSinceEntry > cfg.MaxTrailDistance {
		cand = lot.LowestSinceEntry + cfg.MaxTrailDistance
	}
	if lot.TrailingStop == 0 || cand < lot.TrailingStop {
		lot.TrailingStop = cand
	}
	if c.High >= lot.TrailingStop {
		lot.Trail = model.TrailTriggered
		return lot, trailingExit(lot, c)
	}
	return lot, nil
}

func trailingExit(lot model.Lot, c model.Candle) *model.Signal {
	return &model.Signal{
		Symbol:    c.Symbol,
		Type:      model.SignalExit,
		Direction: lot.Direction,
		Price:     lot.TrailingStop,
		Timestamp: c.Timestamp,
		Reason:    "trailing stop breached",
		Exit:      model.ExitTrailingStop,
		LotID:     lot.ID,
	}
}
