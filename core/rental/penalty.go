package rental

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource tells where a penalty rate came from.
type RateSource string

const (
	RateSourceItem        RateSource = "item"
	RateSourceCategory    RateSource = "category"
	RateSourceDefault     RateSource = "default"
	RateSourceHourlyPrice RateSource = "hourly_price"
)

// PenaltyPolicy holds the business-wide penalty settings.
type PenaltyPolicy struct {
	DefaultRate decimal.Decimal
	GracePeriod time.Duration
}

// RateInputs are the candidate hourly penalty rates of a rented item, most specific first.
type RateInputs struct {
	Item     *decimal.Decimal
	Category *decimal.Decimal
}

type ItemPenalty struct {
	RentalItemID string          `json:"rental_item_id"`
	ItemID       string          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	Quantity     int             `json:"quantity"`
	EndDate      time.Time       `json:"end_date"`
	LateHours    int             `json:"late_hours"`
	Rate         decimal.Decimal `json:"rate"`
	RateSource   RateSource      `json:"rate_source"`
	Penalty      decimal.Decimal `json:"penalty"`
}

// ReturnBreakdown details the penalties owed when a rental is returned at ReturnedAt.
type ReturnBreakdown struct {
	RentalID     string          `json:"rental_id"`
	Code         string          `json:"code"`
	ReturnedAt   time.Time       `json:"returned_at"`
	Items        []ItemPenalty   `json:"items"`
	LateHours    int             `json:"late_hours"`
	PenaltyTotal decimal.Decimal `json:"penalty_total"`
}

// LateHours counts the started hours between end and returnedAt.
// Returns made before end+grace are on time.
func LateHours(end, returnedAt time.Time, grace time.Duration) int {
	if !returnedAt.After(end.Add(grace)) {
		return 0
	}
	return int(math.Ceil(returnedAt.Sub(end).Hours()))
}

// ResolveRate picks the hourly penalty rate: item rate, then category rate,
// then the default rate (when positive), then the item's hourly price.
func ResolveRate(in RateInputs, defaultRate, pricePerDay decimal.Decimal) (decimal.Decimal, RateSource) {
	switch {
	case in.Item != nil:
		return *in.Item, RateSourceItem
	case in.Category != nil:
		return *in.Category, RateSourceCategory
	case defaultRate.IsPositive():
		return defaultRate, RateSourceDefault
	default:
		return pricePerDay.Div(decimal.NewFromInt(24)).Round(2), RateSourceHourlyPrice
	}
}

// ItemPenaltyAmount is rate × hours × quantity, rounded to 2 decimals.
func ItemPenaltyAmount(rate decimal.Decimal, lateHours, qty int) decimal.Decimal {
	if lateHours <= 0 || qty <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(lateHours))).Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// ComputeReturn computes the penalty breakdown of r returned at returnedAt.
// rates is keyed by catalog item ID; missing entries fall back to the default rate or hourly price.
func ComputeReturn(r Rental, rates map[string]RateInputs, returnedAt time.Time, policy PenaltyPolicy) ReturnBreakdown {
	bd := ReturnBreakdown{
		RentalID:     r.ID,
		Code:         r.Code,
		ReturnedAt:   returnedAt,
		Items:        make([]ItemPenalty, 0, len(r.Items)),
		PenaltyTotal: decimal.Zero,
	}
	for _, ri := range r.Items {
		rate, src := ResolveRate(rates[ri.ItemID], policy.DefaultRate, ri.PricePerDay)
		hours := LateHours(ri.EndDate, returnedAt, policy.GracePeriod)
		ip := ItemPenalty{
			RentalItemID: ri.ID,
			ItemID:       ri.ItemID,
			ItemName:     ri.ItemName,
			Quantity:     ri.Quantity,
			EndDate:      ri.EndDate,
			LateHours:    hours,
			Rate:         rate,
			RateSource:   src,
			Penalty:      ItemPenaltyAmount(rate, hours, ri.Quantity),
		}
		bd.Items = append(bd.Items, ip)
		bd.PenaltyTotal = bd.PenaltyTotal.Add(ip.Penalty)
		if hours > bd.LateHours {
			bd.LateHours = hours
		}
	}
	return bd
}

// Apply copies the breakdown onto the rental and its items.
func (bd ReturnBreakdown) Apply(r *Rental) {
	byID := make(map[string]ItemPenalty, len(bd.Items))
	for _, ip := range bd.Items {
		byID[ip.RentalItemID] = ip
	}
	for i := range r.Items {
		ip, ok := byID[r.Items[i].ID]
		if !ok {
			continue
		}
		rate := ip.Rate
		r.Items[i].PenaltyRate = &rate
		r.Items[i].LateHours = ip.LateHours
		r.Items[i].Penalty = ip.Penalty
	}
	returnedAt := bd.ReturnedAt
	r.ReturnedAt = &returnedAt
	r.LateHours = bd.LateHours
	r.PenaltyTotal = bd.PenaltyTotal
}
