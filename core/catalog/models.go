package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
)

type Category struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug"`
	Description    string           `json:"description"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour"`
	CreatedAt      time.Time        `json:"created_at"` // UTC
	UpdatedAt      time.Time        `json:"updated_at"` // UTC
}

type Item struct {
	ID             string           `json:"id"`
	CategoryID     string           `json:"category_id"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug"`
	Description    string           `json:"description"`
	PricePerDay    decimal.Decimal  `json:"price_per_day"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour"`
	Stock          int              `json:"stock"`
	ImageURL       string           `json:"image_url"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"` // UTC
	UpdatedAt      time.Time        `json:"updated_at"` // UTC
}

func (it Item) InStock(qty int) bool { return it.IsActive && it.Stock >= qty }

type NewCategory struct {
	Name           string           `json:"name" validate:"required"`
	Slug           string           `json:"slug" validate:"omitempty,slug"`
	Description    string           `json:"description"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour" validate:"omitempty,gte=0"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Name)
	}
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type UpdateCategory struct {
	Name           *string          `json:"name" validate:"omitempty,notblank"`
	Slug           *string          `json:"slug" validate:"omitempty,slug"`
	Description    *string          `json:"description"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour" validate:"omitempty,gte=0"`
	ClearPenalty   bool             `json:"clear_penalty"`
}

func (uc *UpdateCategory) Validate(validate *validator.Validate) error {
	cleanPtr(&uc.Name, false)
	cleanPtr(&uc.Slug, true)
	return validate.Struct(uc)
}

type NewItem struct {
	CategoryID     string           `json:"category_id" validate:"required"`
	Name           string           `json:"name" validate:"required"`
	Slug           string           `json:"slug" validate:"omitempty,slug"`
	Description    string           `json:"description"`
	PricePerDay    decimal.Decimal  `json:"price_per_day" validate:"gte=0"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour" validate:"omitempty,gte=0"`
	Stock          int              `json:"stock" validate:"gte=0"`
	IsActive       *bool            `json:"is_active"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	ni.Slug = core.CleanString(ni.Slug, true /* lower */)
	if ni.Slug == "" {
		ni.Slug = core.Slugify(ni.Name)
	}
	ni.Description = core.CleanString(ni.Description)
	return validate.Struct(ni)
}

type UpdateItem struct {
	CategoryID     *string          `json:"category_id" validate:"omitempty,notblank"`
	Name           *string          `json:"name" validate:"omitempty,notblank"`
	Slug           *string          `json:"slug" validate:"omitempty,slug"`
	Description    *string          `json:"description"`
	PricePerDay    *decimal.Decimal `json:"price_per_day" validate:"omitempty,gte=0"`
	PenaltyPerHour *decimal.Decimal `json:"penalty_per_hour" validate:"omitempty,gte=0"`
	ClearPenalty   bool             `json:"clear_penalty"`
	Stock          *int             `json:"stock" validate:"omitempty,gte=0"`
	IsActive       *bool            `json:"is_active"`
}

func (ui *UpdateItem) Validate(validate *validator.Validate) error {
	cleanPtr(&ui.CategoryID, false)
	cleanPtr(&ui.Name, false)
	cleanPtr(&ui.Slug, true)
	return validate.Struct(ui)
}

func cleanPtr(s **string, lower bool) {
	if *s == nil {
		return
	}
	v := core.CleanString(**s, lower)
	*s = &v
}

// CategoryFilter selects a single Category. The first non-empty field wins.
type CategoryFilter struct {
	ID   string
	Slug string
}

type ItemFilter struct {
	Search   string           `query:"search"`
	Category string           `query:"category"` // slug
	IsActive *bool            `query:"is_active"`
	InStock  *bool            `query:"in_stock"`
	MinPrice *decimal.Decimal `query:"min_price"`
	MaxPrice *decimal.Decimal `query:"max_price"`
}

func (f *ItemFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Category = core.CleanString(f.Category, true /* lower */)
}

// ItemOrderingFields are the fields items can be ordered by.
var ItemOrderingFields = map[string]string{
	"name":          "name",
	"price_per_day": "price_per_day",
	"stock":         "stock",
	"created_at":    "created_at",
}
