package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func twoPlusOne(t *testing.T) *Promotion {
	t.Helper()
	p, err := NewPromotion("탄산2+1", 2, 1, day("2024-01-01"), day("2024-12-31"))
	require.NoError(t, err)
	return p
}

func TestNewPromotionValidation(t *testing.T) {
	tests := []struct {
		name    string
		trigger int
		bonus   int
		start   string
		end     string
	}{
		{"zero trigger", 0, 1, "2024-01-01", "2024-12-31"},
		{"negative trigger", -2, 1, "2024-01-01", "2024-12-31"},
		{"zero bonus", 2, 0, "2024-01-01", "2024-12-31"},
		{"reversed window", 2, 1, "2024-12-31", "2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPromotion("p", tt.trigger, tt.bonus, day(tt.start), day(tt.end))
			assert.ErrorIs(t, err, ErrInvalidCatalogRecord)
		})
	}
}

func TestPromotionIsActive(t *testing.T) {
	p := twoPlusOne(t)

	assert.True(t, p.IsActive(day("2024-01-01")), "start date is inclusive")
	assert.True(t, p.IsActive(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)), "end date is inclusive")
	assert.False(t, p.IsActive(day("2023-12-31")))
	assert.False(t, p.IsActive(day("2025-01-01")))

	var none *Promotion
	assert.False(t, none.IsActive(day("2024-06-01")))

	typed := *p
	typed.Type = PromotionTypeNone
	assert.False(t, typed.IsActive(day("2024-06-01")))
}

func TestCalculateBonusQuantity(t *testing.T) {
	p := twoPlusOne(t)
	now := day("2024-06-01")

	tests := []struct {
		used int
		want int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{9, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.CalculateBonusQuantity(tt.used, now), "used=%d", tt.used)
	}

	assert.Zero(t, p.CalculateBonusQuantity(4, day("2025-06-01")), "inactive promotion grants nothing")

	var none *Promotion
	assert.Zero(t, none.CalculateBonusQuantity(4, now))
}

func TestCalculatePromotionReduction(t *testing.T) {
	p := twoPlusOne(t)
	now := day("2024-06-01")
	assert.Equal(t, 2, p.CalculatePromotionReduction(3, 1, now))
	assert.Equal(t, 0, p.CalculatePromotionReduction(1, 3, now))
	assert.Zero(t, p.CalculatePromotionReduction(3, 1, day("2025-06-01")), "expired promotion reduces nothing")

	var none *Promotion
	assert.Zero(t, none.CalculatePromotionReduction(3, 1, now))
}

func TestAdditionalRequiredForBonus(t *testing.T) {
	p := twoPlusOne(t)
	assert.Equal(t, 1, p.AdditionalRequiredForBonus(1))
	assert.Equal(t, 0, p.AdditionalRequiredForBonus(2))
	assert.Equal(t, 0, p.AdditionalRequiredForBonus(3), "only quantities below the trigger are offered more")
	assert.Equal(t, 0, p.AdditionalRequiredForBonus(5))
	assert.Equal(t, 0, p.AdditionalRequiredForBonus(0))

	buy5, err := NewPromotion("buy5", 5, 1, day("2024-01-01"), day("2024-12-31"))
	require.NoError(t, err)
	assert.Equal(t, 3, buy5.AdditionalRequiredForBonus(2))
	assert.Equal(t, 0, buy5.AdditionalRequiredForBonus(7))
}
