package cart

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
)

type CartItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	StartDate time.Time `json:"start_date"` // UTC
	EndDate   time.Time `json:"end_date"`   // UTC
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// CartLine is a CartItem priced against the current catalog.
type CartLine struct {
	CartItem
	Item     catalog.Item    `json:"item"`
	Days     int             `json:"days"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Cart struct {
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// RentalDays counts started days between start and end, with a minimum of 1.
func RentalDays(start, end time.Time) int {
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// Subtotal is price × quantity × days.
func Subtotal(pricePerDay decimal.Decimal, qty, days int) decimal.Decimal {
	return pricePerDay.Mul(decimal.NewFromInt(int64(qty))).Mul(decimal.NewFromInt(int64(days))).Round(2)
}

func NewLine(ci CartItem, it catalog.Item) CartLine {
	days := RentalDays(ci.StartDate, ci.EndDate)
	return CartLine{
		CartItem: ci,
		Item:     it,
		Days:     days,
		Subtotal: Subtotal(it.PricePerDay, ci.Quantity, days),
	}
}

func NewCart(lines []CartLine) Cart {
	c := Cart{Lines: lines, Total: decimal.Zero}
	if c.Lines == nil {
		c.Lines = []CartLine{}
	}
	for _, l := range lines {
		c.Total = c.Total.Add(l.Subtotal)
		c.ItemCount += l.Quantity
	}
	return c
}

type NewCartItem struct {
	ItemID    string    `json:"item_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gte=1"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

func (nci *NewCartItem) Validate(validate *validator.Validate, loc *time.Location) error {
	nci.ItemID = core.CleanString(nci.ItemID)
	nci.StartDate = nci.StartDate.UTC()
	nci.EndDate = nci.EndDate.UTC()
	if err := validate.Struct(nci); err != nil {
		return err
	}
	return validateStart(nci.StartDate, loc)
}

type UpdateCartItem struct {
	Quantity  *int       `json:"quantity" validate:"omitempty,gte=1"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

func (uci *UpdateCartItem) Validate(validate *validator.Validate) error {
	return validate.Struct(uci)
}

var NowFunc = time.Now // mockable

// validateStart rejects rentals starting before today, "today" being taken in the business time zone.
func validateStart(start time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	now := NowFunc().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if start.Before(today) {
		return core.NewFieldValidationError("start_date", "start date cannot be in the past")
	}
	return nil
}

func validateDates(start, end time.Time) error {
	if !end.After(start) {
		return core.NewFieldValidationError("end_date", "end date must be after start date")
	}
	return nil
}
