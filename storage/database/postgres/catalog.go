package pgrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
)

var (
	categoryColumns = []string{"id", "name", "slug", "description", "penalty_per_hour", "created_at", "updated_at"}
	itemColumns     = []string{
		"id", "category_id", "name", "slug", "description", "price_per_day", "penalty_per_hour",
		"stock", "image_url", "is_active", "created_at", "updated_at",
	}
)

type categoryRow struct {
	ID             string              `db:"id"`
	Name           string              `db:"name"`
	Slug           string              `db:"slug"`
	Description    string              `db:"description"`
	PenaltyPerHour decimal.NullDecimal `db:"penalty_per_hour"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

type itemRow struct {
	ID             string              `db:"id"`
	CategoryID     string              `db:"category_id"`
	Name           string              `db:"name"`
	Slug           string              `db:"slug"`
	Description    string              `db:"description"`
	PricePerDay    decimal.Decimal     `db:"price_per_day"`
	PenaltyPerHour decimal.NullDecimal `db:"penalty_per_hour"`
	Stock          int                 `db:"stock"`
	ImageURL       string              `db:"image_url"`
	IsActive       bool                `db:"is_active"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

type catalogRepository struct {
	repo
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) catalog.Repository {
	return &catalogRepository{repo{exec: exec}}
}

func (repo *catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	if cat.ID == "" {
		cat.ID = newID()
	}
	q := psql.Insert("categories").Columns(categoryColumns...).Values(
		cat.ID, cat.Name, cat.Slug, cat.Description, nullDecimal(cat.PenaltyPerHour), cat.CreatedAt, cat.UpdatedAt,
	)
	if _, err := execStmt(ctx, repo.getExec(exec), q); err != nil {
		return catalog.Category{}, mapSlugErr(err, "inserting category")
	}
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Category, error) {
	var rows []categoryRow
	q := psql.Select(categoryColumns...).From("categories").OrderBy("name ASC")
	if err := selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	cats := make([]catalog.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, unboilCategory(row))
	}
	return cats, nil
}

func (repo *catalogRepository) GetCategory(ctx context.Context, filter catalog.CategoryFilter, exec ...core.DBExecutor) (catalog.Category, error) {
	q := psql.Select(categoryColumns...).From("categories")
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return catalog.Category{}, catalog.ErrCategoryNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"slug": filter.Slug})
	default:
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}

	var row categoryRow
	if err := getRow(ctx, repo.getExec(exec), &row, q); err != nil {
		return catalog.Category{}, trapNoRowsErr(err, catalog.ErrCategoryNotFound, "getting category")
	}
	return unboilCategory(row), nil
}

func (repo *catalogRepository) UpdateCategory(ctx context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	q := psql.Update("categories").SetMap(map[string]interface{}{
		"name":             cat.Name,
		"slug":             cat.Slug,
		"description":      cat.Description,
		"penalty_per_hour": nullDecimal(cat.PenaltyPerHour),
		"updated_at":       cat.UpdatedAt,
	}).Where(sq.Eq{"id": cat.ID})

	n, err := execStmt(ctx, repo.getExec(exec), q)
	if err != nil {
		return catalog.Category{}, mapSlugErr(err, "updating category")
	}
	if n == 0 {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	return cat, nil
}

func (repo *catalogRepository) DeleteCategory(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrCategoryNotFound
	}
	n, err := execStmt(ctx, repo.getExec(exec), psql.Delete("categories").Where(sq.Eq{"id": id}))
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.ErrCategoryNotEmpty
		}
		return errors.Wrap(err, "deleting category")
	}
	if n == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func (repo *catalogRepository) CategorySlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	return repo.slugExists(ctx, "categories", slug, excludedID, exec)
}

func (repo *catalogRepository) CountItems(ctx context.Context, categoryID string, exec ...core.DBExecutor) (int, error) {
	if !validID(categoryID) {
		return 0, nil
	}
	var count int
	q := psql.Select("COUNT(*)").From("items").Where(sq.Eq{"category_id": categoryID})
	if err := getRow(ctx, repo.getExec(exec), &count, q); err != nil {
		return 0, errors.Wrap(err, "counting items")
	}
	return count, nil
}

func (repo *catalogRepository) CreateItem(ctx context.Context, it catalog.Item, exec ...core.DBExecutor) (catalog.Item, error) {
	if it.ID == "" {
		it.ID = newID()
	}
	q := psql.Insert("items").Columns(itemColumns...).Values(
		it.ID, it.CategoryID, it.Name, it.Slug, it.Description, it.PricePerDay, nullDecimal(it.PenaltyPerHour),
		it.Stock, it.ImageURL, it.IsActive, it.CreatedAt, it.UpdatedAt,
	)
	if _, err := execStmt(ctx, repo.getExec(exec), q); err != nil {
		return catalog.Item{}, mapSlugErr(err, "inserting item")
	}
	return it, nil
}

func itemConditions(filter *catalog.ItemFilter) sq.And {
	conds := sq.And{}
	if filter == nil {
		return conds
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		conds = append(conds, sq.Expr("(name ILIKE ? OR description ILIKE ?)", val, val))
	}
	if filter.Category != "" {
		conds = append(conds, sq.Expr("category_id IN (SELECT id FROM categories WHERE slug = ?)", filter.Category))
	}
	if filter.IsActive != nil {
		conds = append(conds, sq.Eq{"is_active": *filter.IsActive})
	}
	if filter.InStock != nil {
		if *filter.InStock {
			conds = append(conds, sq.Gt{"stock": 0})
		} else {
			conds = append(conds, sq.Eq{"stock": 0})
		}
	}
	if filter.MinPrice != nil {
		conds = append(conds, sq.GtOrEq{"price_per_day": *filter.MinPrice})
	}
	if filter.MaxPrice != nil {
		conds = append(conds, sq.LtOrEq{"price_per_day": *filter.MaxPrice})
	}
	return conds
}

func (repo *catalogRepository) QueryItems(ctx context.Context, filter *catalog.ItemFilter, ordering []core.DBOrdering, page core.PageFilter, exec ...core.DBExecutor) ([]catalog.Item, int, error) {
	conds := itemConditions(filter)
	exe := repo.getExec(exec)

	var count int
	if err := getRow(ctx, exe, &count, psql.Select("COUNT(*)").From("items").Where(conds)); err != nil {
		return nil, 0, errors.Wrap(err, "counting items")
	}

	q := psql.Select(itemColumns...).From("items").Where(conds)
	if len(ordering) > 0 {
		q = q.OrderBy(orderBy(ordering)...)
	} else {
		q = q.OrderBy("name ASC")
	}
	q = pageOf(q, &page)

	var rows []itemRow
	if err := selectRows(ctx, exe, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "querying items")
	}
	return unboilItems(rows), count, nil
}

func (repo *catalogRepository) GetItem(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Item, error) {
	if !validID(id) {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	var row itemRow
	q := psql.Select(itemColumns...).From("items").Where(sq.Eq{"id": id})
	if err := getRow(ctx, repo.getExec(exec), &row, q); err != nil {
		return catalog.Item{}, trapNoRowsErr(err, catalog.ErrItemNotFound, "getting item")
	}
	return unboilItem(row), nil
}

func (repo *catalogRepository) GetItemsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]catalog.Item, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return []catalog.Item{}, nil
	}
	var rows []itemRow
	q := psql.Select(itemColumns...).From("items").Where(sq.Eq{"id": ids})
	if err := selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "getting items")
	}
	return unboilItems(rows), nil
}

func (repo *catalogRepository) UpdateItem(ctx context.Context, it catalog.Item, exec ...core.DBExecutor) (catalog.Item, error) {
	q := psql.Update("items").SetMap(map[string]interface{}{
		"category_id":      it.CategoryID,
		"name":             it.Name,
		"slug":             it.Slug,
		"description":      it.Description,
		"price_per_day":    it.PricePerDay,
		"penalty_per_hour": nullDecimal(it.PenaltyPerHour),
		"stock":            it.Stock,
		"image_url":        it.ImageURL,
		"is_active":        it.IsActive,
		"updated_at":       it.UpdatedAt,
	}).Where(sq.Eq{"id": it.ID})

	n, err := execStmt(ctx, repo.getExec(exec), q)
	if err != nil {
		return catalog.Item{}, mapSlugErr(err, "updating item")
	}
	if n == 0 {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return it, nil
}

func (repo *catalogRepository) DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrItemNotFound
	}
	n, err := execStmt(ctx, repo.getExec(exec), psql.Delete("items").Where(sq.Eq{"id": id}))
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.ErrItemInUse
		}
		return errors.Wrap(err, "deleting item")
	}
	if n == 0 {
		return catalog.ErrItemNotFound
	}
	return nil
}

func (repo *catalogRepository) ItemSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	return repo.slugExists(ctx, "items", slug, excludedID, exec)
}

func (repo *catalogRepository) AdjustStock(ctx context.Context, itemID string, delta int, exec ...core.DBExecutor) error {
	if !validID(itemID) {
		return catalog.ErrItemNotFound
	}
	exe := repo.getExec(exec)
	q := psql.Update("items").
		Set("stock", sq.Expr("stock + ?", delta)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": itemID}).
		Where(sq.Expr("stock + ? >= 0", delta))

	n, err := execStmt(ctx, exe, q)
	if err != nil {
		return errors.Wrap(err, "adjusting stock")
	}
	if n == 1 {
		return nil
	}
	if _, err = repo.GetItem(ctx, itemID, exe); err != nil {
		return err
	}
	return catalog.ErrInsufficientStock
}

func (repo *catalogRepository) slugExists(ctx context.Context, table, slug, excludedID string, exec []core.DBExecutor) (bool, error) {
	q := psql.Select("1").From(table).Where(sq.Eq{"slug": slug}).Limit(1)
	if validID(excludedID) {
		q = q.Where(sq.NotEq{"id": excludedID})
	}
	var one int
	err := getRow(ctx, repo.getExec(exec), &one, q)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, errors.Wrap(err, "checking slug")
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func mapSlugErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return core.NewFieldValidationError("slug", catalog.ErrSlugExists.Error())
	}
	if isForeignKeyViolation(err) {
		return core.NewFieldValidationError("category_id", catalog.ErrCategoryNotFound.Error())
	}
	return errors.Wrap(err, msg)
}

func unboilCategory(row categoryRow) catalog.Category {
	return catalog.Category{
		ID:             row.ID,
		Name:           row.Name,
		Slug:           row.Slug,
		Description:    row.Description,
		PenaltyPerHour: decimalPtr(row.PenaltyPerHour),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func unboilItem(row itemRow) catalog.Item {
	return catalog.Item{
		ID:             row.ID,
		CategoryID:     row.CategoryID,
		Name:           row.Name,
		Slug:           row.Slug,
		Description:    row.Description,
		PricePerDay:    row.PricePerDay,
		PenaltyPerHour: decimalPtr(row.PenaltyPerHour),
		Stock:          row.Stock,
		ImageURL:       row.ImageURL,
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func unboilItems(rows []itemRow) []catalog.Item {
	items := make([]catalog.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, unboilItem(row))
	}
	return items
}
