package service

import (
	"fmt"
	"strings"
)

// Severity 校验问题的严重级别
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// MaxLotsHardLimit 超过该值的 maxLots 视为无界风险配置
const MaxLotsHardLimit = 15

// ValidationIssue 单条校验结论
type ValidationIssue struct {
	Severity Severity
	Field    string
	Message  string
}

// ValidationReport 结构化校验报告。调用方依据严重级别决定是否继续，
// 而不是通过异常中断。
type ValidationReport struct {
	Issues []ValidationIssue
}

func (r *ValidationReport) add(sev Severity, field, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{
		Severity: sev,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasCritical 存在 CRITICAL 问题时运行必须中止
func (r *ValidationReport) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func (r *ValidationReport) String() string {
	if len(r.Issues) == 0 {
		return "validation passed"
	}
	parts := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", issue.Severity, issue.Field, issue.Message))
	}
	return strings.Join(parts, "; ")
}

// ValidateStrategy 在运行开始前拒绝无界风险或自相矛盾的配置。
func ValidateStrategy(cfg *StrategyConfig) *ValidationReport {
	report := &ValidationReport{}

	if cfg.Name == "" {
		report.add(SeverityCritical, "name", "strategy name is required")
	}

	if cfg.EmaFastPeriod > 0 && cfg.EmaSlowPeriod > 0 && cfg.EmaFastPeriod >= cfg.EmaSlowPeriod {
		report.add(SeverityCritical, "emaFastPeriod",
			"fast period (%d) must be strictly less than slow period (%d)",
			cfg.EmaFastPeriod, cfg.EmaSlowPeriod)
	}

	if cfg.MaxLots < 1 {
		report.add(SeverityCritical, "maxLots", "maxLots must be >= 1, got %d", cfg.MaxLots)
	} else if cfg.MaxLots > MaxLotsHardLimit {
		report.add(SeverityCritical, "maxLots",
			"maxLots %d exceeds hard limit %d (unbounded pyramiding risk)", cfg.MaxLots, MaxLotsHardLimit)
	}

	if cfg.MaxLossPct <= 0 || cfg.MaxLossPct > 1 {
		report.add(SeverityCritical, "maxLossPct",
			"maxLossPct must be in (0, 1]; unlimited-risk configuration rejected")
	}

	if cfg.Capital <= 0 {
		report.add(SeverityCritical, "capital", "capital must be > 0, got %.2f", cfg.Capital)
	}

	if cfg.PositionSize <= 0 {
		report.add(SeverityHigh, "positionSize", "positionSize must be > 0, got %.4f", cfg.PositionSize)
	}

	// 运行前的风险上界检查: 每个 Lot 最多亏损 maxLossPct，
	// 满仓时的总敞口不得超过本金
	if cfg.MaxLots >= 1 && cfg.MaxLossPct > 0 && float64(cfg.MaxLots)*cfg.MaxLossPct > 1.0 {
		report.add(SeverityHigh, "maxLots",
			"maxLots (%d) x maxLossPct (%.2f) exceeds total capital exposure bound",
			cfg.MaxLots, cfg.MaxLossPct)
	}

	if cfg.ExitMode != "" && !strings.EqualFold(cfg.ExitMode, "FIFO") && !strings.EqualFold(cfg.ExitMode, "LIFO") {
		report.add(SeverityHigh, "exitMode", "exitMode must be FIFO or LIFO, got %q", cfg.ExitMode)
	}

	if cfg.DirectionMode != "" {
		switch strings.ToLower(cfg.DirectionMode) {
		case "long", "short", "both":
		default:
			report.add(SeverityHigh, "directionMode", "directionMode must be long, short or both, got %q", cfg.DirectionMode)
		}
	}

	if cfg.RsiEntryMax > 0 && cfg.RsiEntryMin > cfg.RsiEntryMax {
		report.add(SeverityMedium, "rsiEntryMin", "RSI entry band is inverted (%.1f > %.1f)",
			cfg.RsiEntryMin, cfg.RsiEntryMax)
	}

	for field, value := range map[string]string{"misExitTime": cfg.MisExitTime, "cncExitTime": cfg.CncExitTime} {
		if value == "" {
			continue
		}
		if _, err := ParseClock(value); err != nil {
			report.add(SeverityHigh, field, "%v", err)
		}
	}

	if cfg.Trailing.Enabled {
		switch strings.ToLower(cfg.Trailing.Mode) {
		case "", "atr": // 空值默认 atr 模式
			if cfg.Trailing.AtrMultiplier <= 0 {
				report.add(SeverityHigh, "trailing.atrMultiplier", "atr trailing requires a positive multiplier")
			}
		case "percent":
			if cfg.Trailing.Percentage <= 0 || cfg.Trailing.Percentage >= 1 {
				report.add(SeverityHigh, "trailing.percentage", "percent trailing requires percentage in (0, 1)")
			}
		default:
			report.add(SeverityMedium, "trailing.mode", "unknown trailing mode %q", cfg.Trailing.Mode)
		}
		if cfg.Trailing.ActivationProfit < 0 {
			report.add(SeverityMedium, "trailing.activationProfit", "activationProfit must be >= 0")
		}
	}

	return report
}
