package catalog

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
)

var (
	// errors
	ErrCategoryNotFound  = errors.New("category not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrCategoryNotEmpty  = errors.New("category still has items")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemInUse         = errors.New("item has rentals; deactivate it instead")
	ErrSlugExists        = errors.New("this slug is already in use")
)

type (
	Repository interface {
		CreateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
		QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]Category, error)
		GetCategory(ctx context.Context, filter CategoryFilter, exec ...core.DBExecutor) (Category, error)
		UpdateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
		DeleteCategory(ctx context.Context, id string, exec ...core.DBExecutor) error
		CategorySlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error)
		CountItems(ctx context.Context, categoryID string, exec ...core.DBExecutor) (int, error)

		CreateItem(ctx context.Context, it Item, exec ...core.DBExecutor) (Item, error)
		QueryItems(ctx context.Context, filter *ItemFilter, ordering []core.DBOrdering, page core.PageFilter, exec ...core.DBExecutor) ([]Item, int, error)
		GetItem(ctx context.Context, id string, exec ...core.DBExecutor) (Item, error)
		GetItemsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Item, error)
		UpdateItem(ctx context.Context, it Item, exec ...core.DBExecutor) (Item, error)
		DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error
		ItemSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error)
		// AdjustStock adds delta to the item's stock, failing with ErrInsufficientStock if it would go below zero.
		AdjustStock(ctx context.Context, itemID string, delta int, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateCategory(ctx context.Context, nc NewCategory) (Category, error)
		QueryCategories(ctx context.Context) ([]Category, error)
		GetCategory(ctx context.Context, id string) (Category, error)
		GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
		UpdateCategory(ctx context.Context, id string, uc UpdateCategory) (Category, error)
		DeleteCategory(ctx context.Context, id string) error

		CreateItem(ctx context.Context, ni NewItem) (Item, error)
		QueryItems(ctx context.Context, filter *ItemFilter, ordering []core.DBOrdering, page core.PageFilter) (core.Page[Item], error)
		GetItem(ctx context.Context, id string) (Item, error)
		GetItems(ctx context.Context, ids []string, exec ...core.DBExecutor) (map[string]Item, error)
		UpdateItem(ctx context.Context, id string, ui UpdateItem) (Item, error)
		DeleteItem(ctx context.Context, id string) error
		SetItemImage(ctx context.Context, id, url string) (Item, error)
		AdjustStock(ctx context.Context, itemID string, delta int, exec ...core.DBExecutor) error
		PenaltyRates(ctx context.Context, items map[string]Item, exec ...core.DBExecutor) (map[string]*decimal.Decimal, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	if err := svc.checkCategorySlug(ctx, nc.Slug, ""); err != nil {
		return Category{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateCategory(ctx, Category{
		Name:           nc.Name,
		Slug:           nc.Slug,
		Description:    nc.Description,
		PenaltyPerHour: nc.PenaltyPerHour,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *service) QueryCategories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

func (svc *service) GetCategory(ctx context.Context, id string) (Category, error) {
	return svc.repo.GetCategory(ctx, CategoryFilter{ID: id})
}

func (svc *service) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	return svc.repo.GetCategory(ctx, CategoryFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *service) UpdateCategory(ctx context.Context, id string, uc UpdateCategory) (Category, error) {
	cat, err := svc.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if uc.Name != nil {
		cat.Name = *uc.Name
	}
	if uc.Slug != nil && *uc.Slug != cat.Slug {
		if err = svc.checkCategorySlug(ctx, *uc.Slug, cat.ID); err != nil {
			return Category{}, err
		}
		cat.Slug = *uc.Slug
	}
	if uc.Description != nil {
		cat.Description = core.CleanString(*uc.Description)
	}
	if uc.ClearPenalty {
		cat.PenaltyPerHour = nil
	} else if uc.PenaltyPerHour != nil {
		cat.PenaltyPerHour = uc.PenaltyPerHour
	}
	cat.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCategory(ctx, cat)
}

func (svc *service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := svc.GetCategory(ctx, id); err != nil {
		return err
	}
	count, err := svc.repo.CountItems(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(err, "counting category items")
	}
	if count > 0 {
		return ErrCategoryNotEmpty
	}
	return svc.repo.DeleteCategory(ctx, id)
}

func (svc *service) checkCategorySlug(ctx context.Context, slug, exclID string) error {
	exists, err := svc.repo.CategorySlugExists(ctx, slug, exclID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking category slug")
	}
	if exists {
		return core.NewFieldValidationError("slug", ErrSlugExists.Error())
	}
	return nil
}

func (svc *service) checkItemSlug(ctx context.Context, slug, exclID string) error {
	exists, err := svc.repo.ItemSlugExists(ctx, slug, exclID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking item slug")
	}
	if exists {
		return core.NewFieldValidationError("slug", ErrSlugExists.Error())
	}
	return nil
}

func (svc *service) checkCategoryExists(ctx context.Context, id string) error {
	if _, err := svc.GetCategory(ctx, id); err != nil {
		if err == ErrCategoryNotFound {
			return core.NewFieldValidationError("category_id", ErrCategoryNotFound.Error())
		}
		return err
	}
	return nil
}

func (svc *service) CreateItem(ctx context.Context, ni NewItem) (Item, error) {
	if err := svc.checkCategoryExists(ctx, ni.CategoryID); err != nil {
		return Item{}, err
	}
	if err := svc.checkItemSlug(ctx, ni.Slug, ""); err != nil {
		return Item{}, err
	}

	now := time.Now().UTC()
	it := Item{
		CategoryID:     ni.CategoryID,
		Name:           ni.Name,
		Slug:           ni.Slug,
		Description:    ni.Description,
		PricePerDay:    ni.PricePerDay.Round(2),
		PenaltyPerHour: ni.PenaltyPerHour,
		Stock:          ni.Stock,
		IsActive:       ni.IsActive == nil || *ni.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateItem(ctx, it)
}

func (svc *service) QueryItems(ctx context.Context, filter *ItemFilter, ordering []core.DBOrdering, page core.PageFilter) (core.Page[Item], error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	items, count, err := svc.repo.QueryItems(ctx, filter, ordering, page)
	if err != nil {
		return core.Page[Item]{}, err
	}
	return core.NewPage(items, count, page), nil
}

func (svc *service) GetItem(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItem(ctx, id)
}

// GetItems returns the items with the given IDs, keyed by ID. Unknown IDs are skipped.
func (svc *service) GetItems(ctx context.Context, ids []string, exec ...core.DBExecutor) (map[string]Item, error) {
	items, err := svc.repo.GetItemsByID(ctx, ids, exec...)
	if err != nil {
		return nil, err
	}
	res := make(map[string]Item, len(items))
	for _, it := range items {
		res[it.ID] = it
	}
	return res, nil
}

func (svc *service) UpdateItem(ctx context.Context, id string, ui UpdateItem) (Item, error) {
	it, err := svc.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if ui.CategoryID != nil && *ui.CategoryID != it.CategoryID {
		if err = svc.checkCategoryExists(ctx, *ui.CategoryID); err != nil {
			return Item{}, err
		}
		it.CategoryID = *ui.CategoryID
	}
	if ui.Name != nil {
		it.Name = *ui.Name
	}
	if ui.Slug != nil && *ui.Slug != it.Slug {
		if err = svc.checkItemSlug(ctx, *ui.Slug, it.ID); err != nil {
			return Item{}, err
		}
		it.Slug = *ui.Slug
	}
	if ui.Description != nil {
		it.Description = core.CleanString(*ui.Description)
	}
	if ui.PricePerDay != nil {
		it.PricePerDay = ui.PricePerDay.Round(2)
	}
	if ui.ClearPenalty {
		it.PenaltyPerHour = nil
	} else if ui.PenaltyPerHour != nil {
		it.PenaltyPerHour = ui.PenaltyPerHour
	}
	if ui.Stock != nil {
		it.Stock = *ui.Stock
	}
	if ui.IsActive != nil {
		it.IsActive = *ui.IsActive
	}
	it.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateItem(ctx, it)
}

func (svc *service) DeleteItem(ctx context.Context, id string) error {
	if _, err := svc.GetItem(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteItem(ctx, id)
}

func (svc *service) SetItemImage(ctx context.Context, id, url string) (Item, error) {
	it, err := svc.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	it.ImageURL = url
	it.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateItem(ctx, it)
}

func (svc *service) AdjustStock(ctx context.Context, itemID string, delta int, exec ...core.DBExecutor) error {
	if delta == 0 {
		return nil
	}
	return svc.repo.AdjustStock(ctx, itemID, delta, exec...)
}

// PenaltyRates returns, per item ID, the penalty rate configured on the item's category (nil when unset).
func (svc *service) PenaltyRates(ctx context.Context, items map[string]Item, exec ...core.DBExecutor) (map[string]*decimal.Decimal, error) {
	cats := make(map[string]Category)
	rates := make(map[string]*decimal.Decimal, len(items))
	for id, it := range items {
		cat, ok := cats[it.CategoryID]
		if !ok {
			var err error
			cat, err = svc.repo.GetCategory(ctx, CategoryFilter{ID: it.CategoryID}, exec...)
			if err != nil && err != ErrCategoryNotFound {
				return nil, pkgerrors.Wrap(err, "getting item category")
			}
			cats[it.CategoryID] = cat
		}
		rates[id] = cat.PenaltyPerHour
	}
	return rates, nil
}
