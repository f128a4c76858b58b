package odds

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateOdds(t *testing.T) {
	tests := []struct {
		name string
		base int64
		p    Parameters
		want int64
	}{
		{"defaults to 100", 0, Parameters{}, 100},
		{"three items", 100, Parameters{ItemCount: 3, DifficultyMultiplier: 1}, 130},
		{"two eliminations doubled", 50, Parameters{EliminationCount: 2, DifficultyMultiplier: 2}, 130},
		{"single item ignored", 100, Parameters{ItemCount: 1}, 100},
		{"single elimination ignored", 100, Parameters{EliminationCount: 1}, 100},
		{"zero multiplier means unset", 80, Parameters{DifficultyMultiplier: 0}, 80},
		{"all adjustments", 100, Parameters{ItemCount: 2, EliminationCount: 4, DifficultyMultiplier: 1.5}, 288},
		{"half rounds up", 1, Parameters{DifficultyMultiplier: 2.5}, 3},
		{"rounds down below half", 10, Parameters{DifficultyMultiplier: 1.04}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateOdds(tt.base, tt.p))
		})
	}
}

func TestCalculateOdds_Monotonic(t *testing.T) {
	base := Parameters{ItemCount: 2, EliminationCount: 2, DifficultyMultiplier: 1}
	prev := CalculateOdds(100, base)

	for _, m := range []float64{1.1, 1.5, 2, 3.75, 10} {
		p := base
		p.DifficultyMultiplier = m
		got := CalculateOdds(100, p)
		assert.GreaterOrEqual(t, got, prev, "difficultyMultiplier=%v", m)
		prev = got
	}

	prev = 0
	for n := 0; n <= 20; n++ {
		got := CalculateOdds(100, Parameters{ItemCount: n, EliminationCount: 3, DifficultyMultiplier: 1.2})
		assert.GreaterOrEqual(t, got, prev, "itemCount=%d", n)
		prev = got
	}

	prev = 0
	for n := 0; n <= 20; n++ {
		got := CalculateOdds(100, Parameters{ItemCount: 3, EliminationCount: n, DifficultyMultiplier: 1.2})
		assert.GreaterOrEqual(t, got, prev, "eliminationCount=%d", n)
		prev = got
	}
}

func TestCalculatePayout(t *testing.T) {
	odds := CalculateOdds(100, Parameters{ItemCount: 3, DifficultyMultiplier: 1})
	assert.True(t, CalculatePayout(decimal.NewFromInt(10), odds).Equal(decimal.NewFromInt(1300)))
	assert.True(t, CalculatePayout(decimal.Zero, odds).IsZero())
	assert.True(t, CalculatePayout(decimal.RequireFromString("0.25"), 130).Equal(decimal.RequireFromString("32.5")))
}

func TestValidateParameters(t *testing.T) {
	assert.NoError(t, ValidateParameters(0, Parameters{}))
	assert.NoError(t, ValidateParameters(100, Parameters{ItemCount: 3, DifficultyMultiplier: 1.5}))
	assert.ErrorIs(t, ValidateParameters(-1, Parameters{}), ErrInvalidParameters)
	assert.ErrorIs(t, ValidateParameters(100, Parameters{ItemCount: -2}), ErrInvalidParameters)
	assert.ErrorIs(t, ValidateParameters(100, Parameters{DifficultyMultiplier: -0.5}), ErrInvalidParameters)
	assert.ErrorIs(t, ValidateParameters(100, Parameters{DifficultyMultiplier: math.Inf(1)}), ErrInvalidParameters)
}

func TestValidateParameters_RejectsOverflowingOdds(t *testing.T) {
	huge := []struct {
		name string
		base int64
		p    Parameters
	}{
		{"item count", 100, Parameters{ItemCount: 1 << 62}},
		{"elimination count", 100, Parameters{EliminationCount: 1 << 62}},
		{"base odds", math.MaxInt64, Parameters{}},
		{"multiplier", 100, Parameters{DifficultyMultiplier: 1e300, ItemCount: 1 << 40}},
	}
	for _, tt := range huge {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateParameters(tt.base, tt.p), ErrInvalidParameters)
		})
	}

	// no limite ainda é aceito e a odd continua positiva
	p := Parameters{ItemCount: 1000, EliminationCount: 1000, DifficultyMultiplier: 1000}
	assert.NoError(t, ValidateParameters(50, p))
	assert.Greater(t, CalculateOdds(50, p), int64(0))
	assert.LessOrEqual(t, CalculateOdds(50, p), MaxOdds)
}
