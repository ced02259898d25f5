package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/cart"
)

var cartItemColumns = []string{"id", "user_id", "item_id", "quantity", "start_date", "end_date", "created_at", "updated_at"}

type cartItemRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ItemID    string    `db:"item_id"`
	Quantity  int       `db:"quantity"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row cartItemRow) unboil() cart.CartItem {
	return cart.CartItem{
		ID:        row.ID,
		UserID:    row.UserID,
		ItemID:    row.ItemID,
		Quantity:  row.Quantity,
		StartDate: row.StartDate.UTC(),
		EndDate:   row.EndDate.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type cartRepository struct {
	repo
}

var _ cart.Repository = (*cartRepository)(nil) // interface compliance check

func NewCartRepository(exec core.DBExecutor) cart.Repository {
	return &cartRepository{repo{exec: exec}}
}

func (repo *cartRepository) ListCartItems(ctx context.Context, userID string, exec ...core.DBExecutor) ([]cart.CartItem, error) {
	if !validID(userID) {
		return []cart.CartItem{}, nil
	}
	var rows []cartItemRow
	q := psql.Select(cartItemColumns...).From("cart_items").Where(sq.Eq{"user_id": userID}).OrderBy("created_at ASC")
	if err := selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing cart items")
	}
	items := make([]cart.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.unboil())
	}
	return items, nil
}

func (repo *cartRepository) GetCartItem(ctx context.Context, userID, id string, exec ...core.DBExecutor) (cart.CartItem, error) {
	if !validID(userID) || !validID(id) {
		return cart.CartItem{}, cart.ErrNotFound
	}
	var row cartItemRow
	q := psql.Select(cartItemColumns...).From("cart_items").Where(sq.Eq{"id": id, "user_id": userID})
	if err := getRow(ctx, repo.getExec(exec), &row, q); err != nil {
		return cart.CartItem{}, trapNoRowsErr(err, cart.ErrNotFound, "getting cart item")
	}
	return row.unboil(), nil
}

func (repo *cartRepository) CreateCartItem(ctx context.Context, ci cart.CartItem, exec ...core.DBExecutor) (cart.CartItem, error) {
	if ci.ID == "" {
		ci.ID = newID()
	}
	q := psql.Insert("cart_items").Columns(cartItemColumns...).Values(
		ci.ID, ci.UserID, ci.ItemID, ci.Quantity, ci.StartDate, ci.EndDate, ci.CreatedAt, ci.UpdatedAt,
	)
	if _, err := execStmt(ctx, repo.getExec(exec), q); err != nil {
		return cart.CartItem{}, errors.Wrap(err, "inserting cart item")
	}
	return ci, nil
}

func (repo *cartRepository) UpdateCartItem(ctx context.Context, ci cart.CartItem, exec ...core.DBExecutor) (cart.CartItem, error) {
	q := psql.Update("cart_items").SetMap(map[string]interface{}{
		"quantity":   ci.Quantity,
		"start_date": ci.StartDate,
		"end_date":   ci.EndDate,
		"updated_at": ci.UpdatedAt,
	}).Where(sq.Eq{"id": ci.ID, "user_id": ci.UserID})

	n, err := execStmt(ctx, repo.getExec(exec), q)
	if err != nil {
		return cart.CartItem{}, errors.Wrap(err, "updating cart item")
	}
	if n == 0 {
		return cart.CartItem{}, cart.ErrNotFound
	}
	return ci, nil
}

func (repo *cartRepository) DeleteCartItem(ctx context.Context, userID, id string, exec ...core.DBExecutor) error {
	if !validID(userID) || !validID(id) {
		return cart.ErrNotFound
	}
	n, err := execStmt(ctx, repo.getExec(exec), psql.Delete("cart_items").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "deleting cart item")
	}
	if n == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (repo *cartRepository) ClearCart(ctx context.Context, userID string, exec ...core.DBExecutor) error {
	if !validID(userID) {
		return nil
	}
	if _, err := execStmt(ctx, repo.getExec(exec), psql.Delete("cart_items").Where(sq.Eq{"user_id": userID})); err != nil {
		return errors.Wrap(err, "clearing cart")
	}
	return nil
}
