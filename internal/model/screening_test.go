package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreening_Validate(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	valid := func() Screening {
		return Screening{
			AuditoriumID:   1,
			StartsAt:       now.Add(time.Hour),
			EndsAt:         now.Add(3 * time.Hour),
			BasePriceCents: 1000,
		}
	}

	tests := []struct {
		name  string
		edit  func(s *Screening)
		field string
	}{
		{"ok", func(s *Screening) {}, ""},
		{"missing auditorium", func(s *Screening) { s.AuditoriumID = 0 }, "auditorium_id"},
		{"zero price", func(s *Screening) { s.BasePriceCents = 0 }, "base_price_cents"},
		{"negative surcharge", func(s *Screening) { s.PremiumSurchargeCents = -1 }, "premium_surcharge_cents"},
		{"past start", func(s *Screening) { s.StartsAt = now.Add(-time.Minute) }, "starts_at"},
		{"end before start", func(s *Screening) { s.EndsAt = s.StartsAt }, "ends_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.edit(&s)
			err := s.Validate(now)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestScreening_CheckBookable(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	base := Screening{ID: 4, StartsAt: now.Add(time.Hour), Status: ScreeningScheduled, AvailableSeats: 3}

	assert.NoError(t, base.CheckBookable(now))

	cases := map[string]struct {
		edit   func(s *Screening)
		reason string
	}{
		"cancelled": {func(s *Screening) { s.Status = ScreeningCancelled }, ReasonScreeningCancelled},
		"started":   {func(s *Screening) { s.StartsAt = now }, ReasonScreeningStarted},
		"sold out":  {func(s *Screening) { s.AvailableSeats = 0 }, ReasonSoldOut},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			s := base
			c.edit(&s)
			err := s.CheckBookable(now)
			var nb *ScreeningNotBookableError
			require.True(t, errors.As(err, &nb))
			assert.Equal(t, c.reason, nb.Reason)
			assert.ErrorIs(t, err, ErrScreeningNotBookable)
		})
	}
}

func TestScreening_PriceFor(t *testing.T) {
	s := Screening{BasePriceCents: 1000, PremiumSurchargeCents: 350}
	assert.Equal(t, int64(1000), s.PriceFor(Seat{Class: SeatClassStandard}))
	assert.Equal(t, int64(1350), s.PriceFor(Seat{Class: SeatClassPremium}))
}

func TestSeatUnavailableError(t *testing.T) {
	err := error(&SeatUnavailableError{ScreeningID: 9, SeatIDs: []uint64{2, 5}})
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "seats [2,5] unavailable for screening 9", err.Error())
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))
	base := errors.New("deadlock")
	err := Transient(base)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsTransient(base))
}
