package rating

import "math"

// Level bounds. Ratings move on a 0.01 grid between these.
const (
	MinLevel = 2.00
	MaxLevel = 4.00

	// BasePoints is the cumulative points a player starts with at MinLevel.
	BasePoints = 4.0
)

// centi converts a level to its discrete centi-level (2.00 -> 200).
// All walking happens on integers so float noise can never skip a step.
func centi(level float64) int {
	return int(math.Round(level * 100))
}

func fromCenti(c int) float64 {
	return float64(c) / 100
}

// StepCost returns the marginal points needed to advance from level to
// level+0.01. The curve is cheap near 2.00 and steepens toward 4.00.
func StepCost(level float64) float64 {
	t := (level - MinLevel) / (MaxLevel - MinLevel)
	factor := 0.20 + 1.80*t*t
	return (30 - 13.5*(level-MinLevel)) * factor
}

// CumulativeThreshold returns the total points required to sit at the given
// level: BasePoints plus every step cost from MinLevel up to (excluding) it.
// Strictly increasing in level.
func CumulativeThreshold(level float64) float64 {
	total := BasePoints
	for c := centi(MinLevel); c < centi(level); c++ {
		total += StepCost(fromCenti(c))
	}
	return total
}

// LevelForPoints walks the level up or down from current until the invariant
// CumulativeThreshold(level) <= points < CumulativeThreshold(level+0.01)
// holds, clamped to [MinLevel, MaxLevel].
func LevelForPoints(points, current float64) float64 {
	c := centi(current)
	if c < centi(MinLevel) {
		c = centi(MinLevel)
	}
	if c > centi(MaxLevel) {
		c = centi(MaxLevel)
	}

	for c < centi(MaxLevel) && points >= CumulativeThreshold(fromCenti(c+1)) {
		c++
	}
	for c > centi(MinLevel) && points < CumulativeThreshold(fromCenti(c)) {
		c--
	}
	return fromCenti(c)
}
