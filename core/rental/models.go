package rental

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
)

type Rental struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	UserID       string          `json:"user_id"`
	Status       Status          `json:"status"`
	StartDate    time.Time       `json:"start_date"` // UTC
	EndDate      time.Time       `json:"end_date"`   // UTC
	Total        decimal.Decimal `json:"total"`
	PenaltyTotal decimal.Decimal `json:"penalty_total"`
	LateHours    int             `json:"late_hours"`
	Notes        string          `json:"notes"`
	PaymentProof string          `json:"payment_proof"`
	ConfirmedAt  *time.Time      `json:"confirmed_at"`
	ConfirmedBy  string          `json:"confirmed_by,omitempty"`
	ReturnedAt   *time.Time      `json:"returned_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	CancelledAt  *time.Time      `json:"cancelled_at"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
	Items        []RentalItem    `json:"items"`
}

// GrandTotal is what the customer owes in total: rental price + penalties.
func (r Rental) GrandTotal() decimal.Decimal { return r.Total.Add(r.PenaltyTotal) }

func (r Rental) IsOverdue(now time.Time) bool {
	return r.Status == StatusConfirmed && now.After(r.EndDate)
}

// RentalItem is a line of a Rental; item name & price are snapshotted at checkout.
type RentalItem struct {
	ID          string           `json:"id"`
	RentalID    string           `json:"rental_id"`
	ItemID      string           `json:"item_id"`
	ItemName    string           `json:"item_name"`
	Quantity    int              `json:"quantity"`
	PricePerDay decimal.Decimal  `json:"price_per_day"`
	StartDate   time.Time        `json:"start_date"` // UTC
	EndDate     time.Time        `json:"end_date"`   // UTC
	Days        int              `json:"days"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	PenaltyRate *decimal.Decimal `json:"penalty_rate"`
	LateHours   int              `json:"late_hours"`
	Penalty     decimal.Decimal  `json:"penalty"`
}

type (
	PaymentKind   string
	PaymentStatus string
)

const (
	PaymentKindRental  PaymentKind = "rental"
	PaymentKindPenalty PaymentKind = "penalty"

	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

type Payment struct {
	ID         string          `json:"id"`
	RentalID   string          `json:"rental_id"`
	Kind       PaymentKind     `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Status     PaymentStatus   `json:"status"`
	ProofPath  string          `json:"proof_path"`
	Note       string          `json:"note"`
	CreatedAt  time.Time       `json:"created_at"` // UTC
	VerifiedAt *time.Time      `json:"verified_at"`
}

type Checkout struct {
	Notes string `json:"notes" validate:"max=1000"`
}

func (c *Checkout) Clean() { c.Notes = core.CleanString(c.Notes) }

type RejectPayment struct {
	Note string `json:"note" validate:"required,max=500"`
}

func (rp *RejectPayment) Clean() { rp.Note = core.CleanString(rp.Note) }

type ReturnRequest struct {
	ReturnedAt *time.Time `json:"returned_at" query:"returned_at"`
}

type QueryFilter struct {
	Status      []Status  `query:"status"`
	UserID      string    `query:"user_id"`
	Code        string    `query:"code"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
	EndBefore   time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.UserID = core.CleanString(qf.UserID)
	qf.Code = strings.ToUpper(core.CleanString(qf.Code))
}

// OrderingFields are the fields rentals can be ordered by.
var OrderingFields = map[string]string{
	"code":       "code",
	"status":     "status",
	"start_date": "start_date",
	"end_date":   "end_date",
	"total":      "total",
	"created_at": "created_at",
}

type Stats struct {
	ByStatus       map[Status]int  `json:"by_status"`
	RentalRevenue  decimal.Decimal `json:"rental_revenue"`
	PenaltyRevenue decimal.Decimal `json:"penalty_revenue"`
	Overdue        int             `json:"overdue"`
}

// NewCode returns a short human-readable reference: KP-YYMMDD-XXXXXX.
func NewCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return fmt.Sprintf("KP-%s-%s", now.Format("060102"), suffix)
}
