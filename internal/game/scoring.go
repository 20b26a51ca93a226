package game

import "math"

const (
	basePoints     = 10
	maxSpeedBonus  = 5
	maxStreakBonus = 10
)

type ScoreBreakdown struct {
	Base        int `json:"base"`
	SpeedBonus  int `json:"speed_bonus"`
	StreakBonus int `json:"streak_bonus"`
	Total       int `json:"total"`
}

// CalculateScore computes the points for one vote. streakBefore is the
// voter's streak as of before this vote's outcome is applied; the same
// goes for every other input, so the function stays pure.
func CalculateScore(mode ScoringMode, correct bool, responseTimeMs int64, votingWindowSec int, streakBefore int) ScoreBreakdown {
	if !correct {
		return ScoreBreakdown{}
	}

	if mode == ScoringSimple {
		return ScoreBreakdown{Base: 1, Total: 1}
	}

	windowMs := float64(votingWindowSec) * 1000
	frac := 0.0
	if windowMs > 0 {
		frac = math.Max(0, 1-float64(responseTimeMs)/windowMs)
	}
	speed := int(math.Round(maxSpeedBonus * frac))

	streak := 2 * streakBefore
	if streak > maxStreakBonus {
		streak = maxStreakBonus
	}

	return ScoreBreakdown{
		Base:        basePoints,
		SpeedBonus:  speed,
		StreakBonus: streak,
		Total:       basePoints + speed + streak,
	}
}
