package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointsDeltaSymmetricWin(t *testing.T) {
	// Fresh 2.00 player, everyone at 2.00, 1-set win:
	// base 12.0, no gap, no partner adjustment, margin 1.15 -> 13.8
	delta := PointsDelta(MatchInput{
		Level:        2.00,
		RivalLevel1:  2.00,
		RivalLevel2:  2.00,
		PartnerLevel: 2.00,
		Won:          true,
		Margin:       1,
	})
	assert.Equal(t, 13.8, delta)
}

func TestPointsDeltaSymmetricLoss(t *testing.T) {
	// base min(-3, -11) = -11, margin multiplier 0.9 -> -9.9
	delta := PointsDelta(MatchInput{
		Level:        2.00,
		RivalLevel1:  2.00,
		RivalLevel2:  2.00,
		PartnerLevel: 2.00,
		Won:          false,
		Margin:       1,
	})
	assert.Equal(t, -9.9, delta)
}

func TestPointsDeltaNoviceUpsetWin(t *testing.T) {
	// New 2.00 player beats two 2.20 rivals with a 2.00 partner, margin 2:
	// (12.0 + 0.20*22.5 + 0) * 1.5 * 1.0 = 24.75
	delta := PointsDelta(MatchInput{
		Level:        2.00,
		RivalLevel1:  2.20,
		RivalLevel2:  2.20,
		PartnerLevel: 2.00,
		Won:          true,
		Margin:       2,
	})
	assert.Equal(t, 24.75, delta)
}

func TestPointsDeltaDeterministic(t *testing.T) {
	in := MatchInput{
		Level:        2.73,
		RivalLevel1:  2.51,
		RivalLevel2:  3.10,
		PartnerLevel: 2.88,
		Won:          true,
		Margin:       2,
		Experience:   17,
		Streak:       3,
	}
	first := PointsDelta(in)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, PointsDelta(in))
	}
}

func TestPointsDeltaMarginMultipliers(t *testing.T) {
	base := func(won bool, margin int) float64 {
		return PointsDelta(MatchInput{
			Level: 2.00, RivalLevel1: 2.00, RivalLevel2: 2.00, PartnerLevel: 2.00,
			Won: won, Margin: margin,
		})
	}

	assert.Equal(t, 12.0, base(true, 0))
	assert.Equal(t, 13.8, base(true, 1))
	assert.Equal(t, 18.0, base(true, 2))
	assert.Equal(t, 22.8, base(true, 3))
	assert.Equal(t, 22.8, base(true, 5)) // >=3 caps the multiplier

	assert.Equal(t, -11.0, base(false, 0))
	assert.Equal(t, -9.9, base(false, 1))
	assert.Equal(t, -7.15, base(false, 2))
	assert.Equal(t, -4.4, base(false, 3))
}

func TestPointsDeltaExperienceDampening(t *testing.T) {
	in := MatchInput{
		Level: 2.00, RivalLevel1: 2.00, RivalLevel2: 2.00, PartnerLevel: 2.00,
		Won: true, Margin: 1,
	}

	in.Experience = 10
	assert.Equal(t, 15.18, PointsDelta(in)) // 13.8 * 1.10

	in.Experience = 50
	assert.Equal(t, 20.7, PointsDelta(in)) // capped at 1.5

	in.Experience = 500
	assert.Equal(t, 20.7, PointsDelta(in))
}

func TestPointsDeltaStreakBonus(t *testing.T) {
	in := MatchInput{
		Level: 2.00, RivalLevel1: 2.00, RivalLevel2: 2.00, PartnerLevel: 2.00,
		Won: true, Margin: 1,
	}

	in.Streak = 1
	assert.Equal(t, 13.8, PointsDelta(in)) // no bonus below a 2-streak

	in.Streak = 2
	assert.Equal(t, 20.8, PointsDelta(in)) // +7.0

	in.Streak = 10
	assert.Equal(t, 28.8, PointsDelta(in)) // bonus capped at 15

	// Never on a loss, whatever the streak says.
	in.Won = false
	assert.Equal(t, -9.9, PointsDelta(in))
}

func TestPointsDeltaHigherLevelSwingsLess(t *testing.T) {
	low := PointsDelta(MatchInput{
		Level: 2.00, RivalLevel1: 2.50, RivalLevel2: 2.50, PartnerLevel: 2.00,
		Won: true, Margin: 1,
	})
	high := PointsDelta(MatchInput{
		Level: 3.80, RivalLevel1: 2.50, RivalLevel2: 2.50, PartnerLevel: 3.80,
		Won: true, Margin: 1,
	})
	assert.Greater(t, low, high)
}

func TestPointsDeltaPartnerAdjustment(t *testing.T) {
	strongPartner := PointsDelta(MatchInput{
		Level: 2.50, RivalLevel1: 2.50, RivalLevel2: 2.50, PartnerLevel: 3.00,
		Won: true, Margin: 1,
	})
	equalPartner := PointsDelta(MatchInput{
		Level: 2.50, RivalLevel1: 2.50, RivalLevel2: 2.50, PartnerLevel: 2.50,
		Won: true, Margin: 1,
	})
	// Winning with a stronger partner is worth less.
	assert.Less(t, strongPartner, equalPartner)
}
