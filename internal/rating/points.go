package rating

import "math"

// MatchInput is everything the point calculation needs to know about one
// player's view of one completed match.
type MatchInput struct {
	Level        float64 // player's level entering the match
	RivalLevel1  float64 // first opponent's level
	RivalLevel2  float64 // second opponent's level
	PartnerLevel float64
	Won          bool
	Margin       int // |sets won - sets lost|
	Experience   int // matches played before this one
	Streak       int // signed streak entering the match
}

// PointsDelta computes the signed point change for one player from one
// match, rounded to 2 decimal places. Pure: identical inputs always yield
// identical output, which is what makes full history replay deterministic.
func PointsDelta(in MatchInput) float64 {
	// Higher-level players swing less.
	progressive := 1 - ((in.Level-MinLevel)/2.0)*0.7

	var base float64
	if in.Won {
		base = math.Max(3, 12.0*progressive)
	} else {
		base = math.Min(-3, -11.0*(2-progressive))
	}

	rivalAvg := (in.RivalLevel1 + in.RivalLevel2) / 2
	levelGap := (rivalAvg - in.Level) * 22.5 * progressive
	partner := -(in.PartnerLevel - in.Level) * 4.5 * progressive

	margin := marginMultiplier(in.Won, in.Margin)
	experience := math.Min(1.5, 1+float64(in.Experience)*0.01)

	delta := (base + levelGap + partner) * margin * experience

	if in.Won && in.Streak >= 2 {
		delta += math.Min(15, float64(in.Streak)*3.5)
	}

	return math.Round(delta*100) / 100
}

func marginMultiplier(won bool, margin int) float64 {
	if won {
		switch {
		case margin >= 3:
			return 1.9
		case margin == 2:
			return 1.5
		case margin == 1:
			return 1.15
		}
		return 1.0
	}
	switch {
	case margin >= 3:
		return 0.4
	case margin == 2:
		return 0.65
	case margin == 1:
		return 0.9
	}
	return 1.0
}
