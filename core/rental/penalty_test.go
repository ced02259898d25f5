package rental

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestLateHours(t *testing.T) {
	end := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		returnedAt time.Time
		grace      time.Duration
		want       int
	}{
		{name: "early", returnedAt: end.Add(-3 * time.Hour), want: 0},
		{name: "exactly at end", returnedAt: end, want: 0},
		{name: "one second late", returnedAt: end.Add(time.Second), want: 1},
		{name: "exactly 2h late", returnedAt: end.Add(2 * time.Hour), want: 2},
		{name: "2h01 late", returnedAt: end.Add(2*time.Hour + time.Minute), want: 3},
		{name: "within grace", returnedAt: end.Add(50 * time.Minute), grace: time.Hour, want: 0},
		{name: "at grace limit", returnedAt: end.Add(time.Hour), grace: time.Hour, want: 0},
		{name: "past grace counts from end", returnedAt: end.Add(90 * time.Minute), grace: time.Hour, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LateHours(end, tt.returnedAt, tt.grace))
		})
	}
}

func TestResolveRate(t *testing.T) {
	tests := []struct {
		name        string
		in          RateInputs
		defaultRate decimal.Decimal
		price       decimal.Decimal
		wantRate    decimal.Decimal
		wantSource  RateSource
	}{
		{
			name:       "item rate wins",
			in:         RateInputs{Item: decPtr("5000"), Category: decPtr("3000")},
			price:      dec("120000"),
			wantRate:   dec("5000"),
			wantSource: RateSourceItem,
		},
		{
			name:       "zero item rate is still an explicit rate",
			in:         RateInputs{Item: decPtr("0"), Category: decPtr("3000")},
			price:      dec("120000"),
			wantRate:   dec("0"),
			wantSource: RateSourceItem,
		},
		{
			name:        "category rate",
			in:          RateInputs{Category: decPtr("3000")},
			defaultRate: dec("1000"),
			price:       dec("120000"),
			wantRate:    dec("3000"),
			wantSource:  RateSourceCategory,
		},
		{
			name:        "default rate",
			defaultRate: dec("1000"),
			price:       dec("120000"),
			wantRate:    dec("1000"),
			wantSource:  RateSourceDefault,
		},
		{
			name:       "hourly price",
			price:      dec("120000"),
			wantRate:   dec("5000"),
			wantSource: RateSourceHourlyPrice,
		},
		{
			name:       "hourly price is rounded",
			price:      dec("100000"),
			wantRate:   dec("4166.67"),
			wantSource: RateSourceHourlyPrice,
		},
		{
			name:       "zero price",
			price:      dec("0"),
			wantRate:   dec("0"),
			wantSource: RateSourceHourlyPrice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, src := ResolveRate(tt.in, tt.defaultRate, tt.price)
			assert.True(t, tt.wantRate.Equal(rate), "rate = %s, want %s", rate, tt.wantRate)
			assert.Equal(t, tt.wantSource, src)
		})
	}
}

func TestComputeReturn(t *testing.T) {
	start := time.Date(2024, 6, 8, 8, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	r := Rental{
		ID:        "r1",
		Code:      "KP-240608-ABCDEF",
		Status:    StatusConfirmed,
		StartDate: start,
		EndDate:   end.Add(24 * time.Hour),
		Items: []RentalItem{
			{ID: "ri1", ItemID: "grill", ItemName: "Grill", Quantity: 2, PricePerDay: dec("120000"), StartDate: start, EndDate: end},
			{ID: "ri2", ItemID: "tent", ItemName: "Tent", Quantity: 1, PricePerDay: dec("96000"), StartDate: start, EndDate: end.Add(24 * time.Hour)},
			{ID: "ri3", ItemID: "chair", ItemName: "Chair", Quantity: 3, PricePerDay: dec("24000"), StartDate: start, EndDate: end},
		},
	}
	rates := map[string]RateInputs{
		"grill": {Item: decPtr("7500")},
		"chair": {Category: decPtr("500")},
		// tent: nothing configured
	}

	t.Run("on time", func(t *testing.T) {
		bd := ComputeReturn(r, rates, end, PenaltyPolicy{})
		assert.Equal(t, 0, bd.LateHours)
		assert.True(t, bd.PenaltyTotal.IsZero())
		for _, ip := range bd.Items {
			assert.True(t, ip.Penalty.IsZero(), ip.ItemName)
		}
	})

	t.Run("late with fallbacks", func(t *testing.T) {
		returnedAt := end.Add(3*time.Hour + 10*time.Minute) // 4 started hours for grill & chair, tent on time
		bd := ComputeReturn(r, rates, returnedAt, PenaltyPolicy{})

		assert.Equal(t, "r1", bd.RentalID)
		assert.Equal(t, 4, bd.LateHours)
		if assert.Len(t, bd.Items, 3) {
			grill, tent, chair := bd.Items[0], bd.Items[1], bd.Items[2]

			assert.Equal(t, RateSourceItem, grill.RateSource)
			assert.Equal(t, 4, grill.LateHours)
			assert.True(t, dec("60000").Equal(grill.Penalty), grill.Penalty.String()) // 7500 × 4 × 2

			assert.Equal(t, RateSourceHourlyPrice, tent.RateSource)
			assert.True(t, dec("4000").Equal(tent.Rate))
			assert.Equal(t, 0, tent.LateHours)
			assert.True(t, tent.Penalty.IsZero())

			assert.Equal(t, RateSourceCategory, chair.RateSource)
			assert.True(t, dec("6000").Equal(chair.Penalty), chair.Penalty.String()) // 500 × 4 × 3
		}
		assert.True(t, dec("66000").Equal(bd.PenaltyTotal), bd.PenaltyTotal.String())
	})

	t.Run("default rate and grace", func(t *testing.T) {
		returnedAt := end.Add(24*time.Hour + 45*time.Minute) // tent 45m late, others 24h45m late
		policy := PenaltyPolicy{DefaultRate: dec("2000"), GracePeriod: time.Hour}
		bd := ComputeReturn(r, rates, returnedAt, policy)

		tent := bd.Items[1]
		assert.Equal(t, RateSourceDefault, tent.RateSource)
		assert.Equal(t, 0, tent.LateHours)
		assert.Equal(t, 25, bd.Items[0].LateHours)
		assert.Equal(t, 25, bd.LateHours)
		// grill 7500 × 25 × 2 + chair 500 × 25 × 3
		assert.True(t, dec("412500").Equal(bd.PenaltyTotal), bd.PenaltyTotal.String())
	})

	t.Run("apply", func(t *testing.T) {
		returnedAt := end.Add(2 * time.Hour)
		bd := ComputeReturn(r, rates, returnedAt, PenaltyPolicy{})
		rr := r
		rr.Items = append([]RentalItem(nil), r.Items...)
		bd.Apply(&rr)

		assert.Equal(t, returnedAt, *rr.ReturnedAt)
		assert.Equal(t, 2, rr.LateHours)
		assert.True(t, bd.PenaltyTotal.Equal(rr.PenaltyTotal))
		assert.True(t, dec("7500").Equal(*rr.Items[0].PenaltyRate))
		assert.Equal(t, 2, rr.Items[0].LateHours)
		assert.True(t, dec("30000").Equal(rr.Items[0].Penalty))
		assert.Nil(t, r.Items[0].PenaltyRate, "original rental must be left untouched")
	})
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusWaitingConfirmation, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusConfirmed, false},
		{StatusWaitingConfirmation, StatusConfirmed, true},
		{StatusWaitingConfirmation, StatusPending, true},
		{StatusWaitingConfirmation, StatusCancelled, true},
		{StatusConfirmed, StatusReturned, true},
		{StatusConfirmed, StatusCancelled, false},
		{StatusReturned, StatusCompleted, true},
		{StatusReturned, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewCode(t *testing.T) {
	code := NewCode(time.Date(2024, 6, 8, 8, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^KP-240608-[0-9A-F]{6}$`, code)
	assert.NotEqual(t, code, NewCode(time.Date(2024, 6, 8, 8, 0, 0, 0, time.UTC)))
}
