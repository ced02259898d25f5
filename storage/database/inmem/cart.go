package inmemdb

import (
	"context"
	"sort"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/cart"
)

type cartRepository struct {
	db *DB
}

func NewCartRepository(db *DB) cart.Repository {
	return &cartRepository{db: db}
}

func (repo *cartRepository) ListCartItems(_ context.Context, userID string, _ ...core.DBExecutor) ([]cart.CartItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cis := make([]cart.CartItem, 0)
	for _, ci := range repo.db.cartItems {
		if ci.UserID == userID {
			cis = append(cis, ci)
		}
	}
	sort.Slice(cis, func(i, j int) bool { return cis[i].CreatedAt.Before(cis[j].CreatedAt) })
	return cis, nil
}

func (repo *cartRepository) GetCartItem(_ context.Context, userID, id string, _ ...core.DBExecutor) (cart.CartItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ci, ok := repo.db.cartItems[id]; ok && ci.UserID == userID {
		return ci, nil
	}
	return cart.CartItem{}, cart.ErrNotFound
}

func (repo *cartRepository) CreateCartItem(_ context.Context, ci cart.CartItem, exec ...core.DBExecutor) (cart.CartItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ci.ID == "" {
		ci.ID = newID()
	}
	put(repo.db.cartItems, ci.ID, ci, exec)
	return ci, nil
}

func (repo *cartRepository) UpdateCartItem(_ context.Context, ci cart.CartItem, exec ...core.DBExecutor) (cart.CartItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.cartItems[ci.ID]; !ok || orig.UserID != ci.UserID {
		return cart.CartItem{}, cart.ErrNotFound
	}
	put(repo.db.cartItems, ci.ID, ci, exec)
	return ci, nil
}

func (repo *cartRepository) DeleteCartItem(_ context.Context, userID, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ci, ok := repo.db.cartItems[id]; !ok || ci.UserID != userID {
		return cart.ErrNotFound
	}
	del(repo.db.cartItems, id, exec)
	return nil
}

func (repo *cartRepository) ClearCart(_ context.Context, userID string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, ci := range repo.db.cartItems {
		if ci.UserID == userID {
			del(repo.db.cartItems, id, exec)
		}
	}
	return nil
}
