package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
)

type catalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateCategory(_ context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if cat.ID == "" {
		cat.ID = newID()
	}
	put(repo.db.categories, cat.ID, cat, exec)
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(_ context.Context, _ ...core.DBExecutor) ([]catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cats := make([]catalog.Category, 0, len(repo.db.categories))
	for _, cat := range repo.db.categories {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *catalogRepository) GetCategory(_ context.Context, filter catalog.CategoryFilter, _ ...core.DBExecutor) (catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if cat, ok := repo.db.categories[filter.ID]; ok {
			return cat, nil
		}
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	for _, cat := range repo.db.categories {
		if filter.Slug != "" && cat.Slug == filter.Slug {
			return cat, nil
		}
	}
	return catalog.Category{}, catalog.ErrCategoryNotFound
}

func (repo *catalogRepository) UpdateCategory(_ context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.categories[cat.ID]; !ok {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	put(repo.db.categories, cat.ID, cat, exec)
	return cat, nil
}

func (repo *catalogRepository) DeleteCategory(_ context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.categories[id]; !ok {
		return catalog.ErrCategoryNotFound
	}
	del(repo.db.categories, id, exec)
	return nil
}

func (repo *catalogRepository) CategorySlugExists(_ context.Context, slug, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cat := range repo.db.categories {
		if cat.Slug == slug && cat.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *catalogRepository) CountItems(_ context.Context, categoryID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, it := range repo.db.items {
		if it.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func (repo *catalogRepository) CreateItem(_ context.Context, it catalog.Item, exec ...core.DBExecutor) (catalog.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if it.ID == "" {
		it.ID = newID()
	}
	put(repo.db.items, it.ID, it, exec)
	return it, nil
}

func (repo *catalogRepository) QueryItems(
	_ context.Context,
	filter *catalog.ItemFilter,
	ordering []core.DBOrdering,
	page core.PageFilter,
	_ ...core.DBExecutor,
) ([]catalog.Item, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]catalog.Item, 0, len(repo.db.items))
	for _, it := range repo.db.items {
		if filter == nil || repo.matchItem(it, filter) {
			items = append(items, it)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return lessBy(ordering, func(field string) int { return compareItems(items[i], items[j], field) })
	})
	return paginate(items, &page), len(items), nil
}

func (repo *catalogRepository) matchItem(it catalog.Item, filter *catalog.ItemFilter) bool {
	if filter.Search != "" && !containsAny(strings.ToLower(filter.Search), it.Name, it.Description) {
		return false
	}
	if filter.Category != "" {
		if cat, ok := repo.db.categories[it.CategoryID]; !ok || cat.Slug != filter.Category {
			return false
		}
	}
	if filter.IsActive != nil && it.IsActive != *filter.IsActive {
		return false
	}
	if filter.InStock != nil && (it.Stock > 0) != *filter.InStock {
		return false
	}
	if filter.MinPrice != nil && it.PricePerDay.LessThan(*filter.MinPrice) {
		return false
	}
	if filter.MaxPrice != nil && it.PricePerDay.GreaterThan(*filter.MaxPrice) {
		return false
	}
	return true
}

func compareItems(a, b catalog.Item, field string) int {
	switch field {
	case "price_per_day":
		return a.PricePerDay.Cmp(b.PricePerDay)
	case "stock":
		return a.Stock - b.Stock
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

func (repo *catalogRepository) GetItem(_ context.Context, id string, _ ...core.DBExecutor) (catalog.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if it, ok := repo.db.items[id]; ok {
		return it, nil
	}
	return catalog.Item{}, catalog.ErrItemNotFound
}

func (repo *catalogRepository) GetItemsByID(_ context.Context, ids []string, _ ...core.DBExecutor) ([]catalog.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]catalog.Item, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if it, ok := repo.db.items[id]; ok && !seen[id] {
			items = append(items, it)
			seen[id] = true
		}
	}
	return items, nil
}

func (repo *catalogRepository) UpdateItem(_ context.Context, it catalog.Item, exec ...core.DBExecutor) (catalog.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.items[it.ID]; !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	put(repo.db.items, it.ID, it, exec)
	return it, nil
}

func (repo *catalogRepository) DeleteItem(_ context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.items[id]; !ok {
		return catalog.ErrItemNotFound
	}
	for _, ri := range repo.db.rentalItems {
		if ri.ItemID == id {
			return catalog.ErrItemInUse
		}
	}
	del(repo.db.items, id, exec)
	for ciID, ci := range repo.db.cartItems {
		if ci.ItemID == id {
			del(repo.db.cartItems, ciID, exec)
		}
	}
	return nil
}

func (repo *catalogRepository) ItemSlugExists(_ context.Context, slug, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, it := range repo.db.items {
		if it.Slug == slug && it.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *catalogRepository) AdjustStock(_ context.Context, itemID string, delta int, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	it, ok := repo.db.items[itemID]
	if !ok {
		return catalog.ErrItemNotFound
	}
	if it.Stock+delta < 0 {
		return catalog.ErrInsufficientStock
	}
	it.Stock += delta
	put(repo.db.items, itemID, it, exec)
	return nil
}
