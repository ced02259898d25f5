package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
)

var (
	// errors
	ErrNotFound  = errors.New("cart item not found")
	ErrEmptyCart = errors.New("cart is empty")
)

type (
	Repository interface {
		ListCartItems(ctx context.Context, userID string, exec ...core.DBExecutor) ([]CartItem, error)
		GetCartItem(ctx context.Context, userID, id string, exec ...core.DBExecutor) (CartItem, error)
		CreateCartItem(ctx context.Context, ci CartItem, exec ...core.DBExecutor) (CartItem, error)
		UpdateCartItem(ctx context.Context, ci CartItem, exec ...core.DBExecutor) (CartItem, error)
		DeleteCartItem(ctx context.Context, userID, id string, exec ...core.DBExecutor) error
		ClearCart(ctx context.Context, userID string, exec ...core.DBExecutor) error
	}

	Service interface {
		Get(ctx context.Context, userID string, exec ...core.DBExecutor) (Cart, error)
		Add(ctx context.Context, userID string, nci NewCartItem) (CartLine, error)
		Update(ctx context.Context, userID, id string, uci UpdateCartItem) (CartLine, error)
		Remove(ctx context.Context, userID, id string) error
		Clear(ctx context.Context, userID string, exec ...core.DBExecutor) error
	}

	service struct {
		repo       Repository
		catalogSvc catalog.Service
		conf       *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, catalogSvc catalog.Service, conf *core.Config) Service {
	return &service{repo: repo, catalogSvc: catalogSvc, conf: conf}
}

// Get returns the user's cart priced against the current catalog.
// Lines whose item no longer exists are dropped.
func (svc *service) Get(ctx context.Context, userID string, exec ...core.DBExecutor) (Cart, error) {
	cis, err := svc.repo.ListCartItems(ctx, userID, exec...)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(err, "listing cart items")
	}
	ids := make([]string, 0, len(cis))
	for _, ci := range cis {
		ids = append(ids, ci.ItemID)
	}
	items, err := svc.catalogSvc.GetItems(ctx, ids, exec...)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(err, "getting cart items")
	}

	lines := make([]CartLine, 0, len(cis))
	for _, ci := range cis {
		it, ok := items[ci.ItemID]
		if !ok {
			continue
		}
		lines = append(lines, NewLine(ci, it))
	}
	return NewCart(lines), nil
}

func (svc *service) Add(ctx context.Context, userID string, nci NewCartItem) (CartLine, error) {
	it, err := svc.getAvailableItem(ctx, nci.ItemID)
	if err != nil {
		return CartLine{}, err
	}

	cis, err := svc.repo.ListCartItems(ctx, userID)
	if err != nil {
		return CartLine{}, pkgerrors.Wrap(err, "listing cart items")
	}
	now := time.Now().UTC()
	for _, ci := range cis {
		if ci.ItemID == nci.ItemID && ci.StartDate.Equal(nci.StartDate) && ci.EndDate.Equal(nci.EndDate) {
			ci.Quantity += nci.Quantity
			if err = checkQuantity(it, ci.Quantity); err != nil {
				return CartLine{}, err
			}
			ci.UpdatedAt = now
			if ci, err = svc.repo.UpdateCartItem(ctx, ci); err != nil {
				return CartLine{}, err
			}
			return NewLine(ci, it), nil
		}
	}

	if err = checkQuantity(it, nci.Quantity); err != nil {
		return CartLine{}, err
	}
	ci, err := svc.repo.CreateCartItem(ctx, CartItem{
		UserID:    userID,
		ItemID:    nci.ItemID,
		Quantity:  nci.Quantity,
		StartDate: nci.StartDate,
		EndDate:   nci.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return CartLine{}, err
	}
	return NewLine(ci, it), nil
}

func (svc *service) Update(ctx context.Context, userID, id string, uci UpdateCartItem) (CartLine, error) {
	ci, err := svc.repo.GetCartItem(ctx, userID, id)
	if err != nil {
		return CartLine{}, err
	}
	it, err := svc.getAvailableItem(ctx, ci.ItemID)
	if err != nil {
		return CartLine{}, err
	}

	if uci.Quantity != nil {
		ci.Quantity = *uci.Quantity
	}
	if uci.StartDate != nil {
		if err = validateStart(uci.StartDate.UTC(), svc.conf.Rental.Location); err != nil {
			return CartLine{}, err
		}
		ci.StartDate = uci.StartDate.UTC()
	}
	if uci.EndDate != nil {
		ci.EndDate = uci.EndDate.UTC()
	}
	if err = validateDates(ci.StartDate, ci.EndDate); err != nil {
		return CartLine{}, err
	}
	if err = checkQuantity(it, ci.Quantity); err != nil {
		return CartLine{}, err
	}

	ci.UpdatedAt = time.Now().UTC()
	if ci, err = svc.repo.UpdateCartItem(ctx, ci); err != nil {
		return CartLine{}, err
	}
	return NewLine(ci, it), nil
}

func (svc *service) Remove(ctx context.Context, userID, id string) error {
	if _, err := svc.repo.GetCartItem(ctx, userID, id); err != nil {
		return err
	}
	return svc.repo.DeleteCartItem(ctx, userID, id)
}

func (svc *service) Clear(ctx context.Context, userID string, exec ...core.DBExecutor) error {
	return svc.repo.ClearCart(ctx, userID, exec...)
}

func (svc *service) getAvailableItem(ctx context.Context, id string) (catalog.Item, error) {
	it, err := svc.catalogSvc.GetItem(ctx, id)
	if err != nil {
		if err == catalog.ErrItemNotFound {
			return catalog.Item{}, core.NewFieldValidationError("item_id", err.Error())
		}
		return catalog.Item{}, err
	}
	if !it.IsActive {
		return catalog.Item{}, core.NewFieldValidationError("item_id", "this item is not available for rent")
	}
	return it, nil
}

func checkQuantity(it catalog.Item, qty int) error {
	if qty > it.Stock {
		return core.NewFieldValidationError("quantity", fmt.Sprintf("only %d left in stock", it.Stock))
	}
	return nil
}

// ValidateLines checks that the cart can still be rented as is. Quantities are summed per item across lines
// before being compared to stock.
func ValidateLines(lines []CartLine, loc *time.Location) error {
	wanted := make(map[string]int, len(lines))
	for _, l := range lines {
		if !l.Item.IsActive {
			return core.NewFieldValidationError("items", fmt.Sprintf("%s is not available for rent anymore", l.Item.Name))
		}
		if err := validateStart(l.StartDate, loc); err != nil {
			return core.NewFieldValidationError("items", fmt.Sprintf("%s starts in the past, update its dates", l.Item.Name))
		}
		wanted[l.ItemID] += l.Quantity
		if wanted[l.ItemID] > l.Item.Stock {
			return core.NewFieldValidationError("items", fmt.Sprintf("only %d %s left in stock", l.Item.Stock, l.Item.Name))
		}
	}
	return nil
}
