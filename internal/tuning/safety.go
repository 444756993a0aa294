package tuning

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/pkg/types"
)

// Degradation thresholds. Any single breach flips the strategy into the
// conservative bundle for the cycle.
const (
	safetyMinWinRate       = 35.0
	safetyMinProfitFactor  = 0.7
	safetyMaxConsecLosses  = 15
	safetyMinTradesToJudge = 10
)

// Guard watches for performance degradation and forces a conservative
// posture when it finds any.
type Guard struct {
	logger *zap.Logger
}

func NewGuard(logger *zap.Logger) *Guard {
	return &Guard{logger: logger}
}

// Check reports whether performance is healthy enough to keep the current
// posture. Below ten trades there is nothing to judge, so the verdict is
// deferred (treated as safe).
func (g *Guard) Check(s types.Summary) (bool, string) {
	if s.TotalTrades < safetyMinTradesToJudge {
		return true, "insufficient data, deferred"
	}

	var violations []string
	if s.WinRate < safetyMinWinRate {
		violations = append(violations,
			fmt.Sprintf("win rate %.1f%% < %.0f%%", s.WinRate, safetyMinWinRate))
	}
	if s.ProfitFactor < safetyMinProfitFactor {
		violations = append(violations,
			fmt.Sprintf("profit factor %.2f < %.1f", s.ProfitFactor, safetyMinProfitFactor))
	}
	if s.MaxConsecutiveLosses >= safetyMaxConsecLosses {
		violations = append(violations,
			fmt.Sprintf("%d consecutive losses >= %d", s.MaxConsecutiveLosses, safetyMaxConsecLosses))
	}

	if len(violations) > 0 {
		msg := "performance degradation: " + strings.Join(violations, " | ")
		g.logger.Warn("Safety guard tripped", zap.String("violations", msg))
		return false, msg
	}
	return true, "performance healthy"
}
