package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/tests"
)

func Test_service_categories(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	svc := app.CatalogSvc

	nc := catalog.NewCategory{Name: "  Sleeping Bags "}
	require.NoError(t, nc.Validate(app.Validate))
	cat, err := svc.CreateCategory(ctx, nc)
	require.NoError(t, err)
	assert.Equal(t, "Sleeping Bags", cat.Name)
	assert.Equal(t, "sleeping-bags", cat.Slug)

	_, err = svc.CreateCategory(ctx, catalog.NewCategory{Name: "Dupe", Slug: "sleeping-bags"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "slug", vErr.Fields[0].Field)

	got, err := svc.GetCategoryBySlug(ctx, "SLEEPING-BAGS")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, got.ID)

	rate := decimal.NewFromInt(2000)
	cat, err = svc.UpdateCategory(ctx, cat.ID, catalog.UpdateCategory{PenaltyPerHour: &rate})
	require.NoError(t, err)
	require.NotNil(t, cat.PenaltyPerHour)
	cat, err = svc.UpdateCategory(ctx, cat.ID, catalog.UpdateCategory{ClearPenalty: true})
	require.NoError(t, err)
	assert.Nil(t, cat.PenaltyPerHour)

	testutil.CreateItem(t, app.CatalogRepo, cat.ID, "Mummy Bag", "mummy-bag", "15000", 4, true)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, cat.ID), catalog.ErrCategoryNotEmpty)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, "unknown"), catalog.ErrCategoryNotFound)
}

func Test_service_items(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	svc := app.CatalogSvc
	rate := decimal.NewFromInt(3000)
	tents := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", &rate)
	stoves := testutil.CreateCategory(t, app.CatalogRepo, "Stoves", "stoves", nil)

	_, err := svc.CreateItem(ctx, catalog.NewItem{CategoryID: "nope", Name: "Ghost", Slug: "ghost"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "category_id", vErr.Fields[0].Field)

	ni := catalog.NewItem{CategoryID: tents.ID, Name: "Tunnel Tent", PricePerDay: decimal.RequireFromString("45000.456"), Stock: 2}
	require.NoError(t, ni.Validate(app.Validate))
	tunnel, err := svc.CreateItem(ctx, ni)
	require.NoError(t, err)
	assert.Equal(t, "tunnel-tent", tunnel.Slug)
	assert.True(t, tunnel.IsActive)
	assert.Equal(t, "45000.46", tunnel.PricePerDay.String())

	own := decimal.NewFromInt(9000)
	burner := testutil.CreateItem(t, app.CatalogRepo, stoves.ID, "Burner", "burner", "20000", 0, true)
	burner, err = svc.UpdateItem(ctx, burner.ID, catalog.UpdateItem{PenaltyPerHour: &own})
	require.NoError(t, err)

	rates, err := svc.PenaltyRates(ctx, map[string]catalog.Item{tunnel.ID: tunnel, burner.ID: burner})
	require.NoError(t, err)
	require.NotNil(t, rates[tunnel.ID])
	assert.True(t, rate.Equal(*rates[tunnel.ID]))
	assert.Nil(t, rates[burner.ID])

	assert.ErrorIs(t, svc.AdjustStock(ctx, tunnel.ID, -3), catalog.ErrInsufficientStock)
	require.NoError(t, svc.AdjustStock(ctx, tunnel.ID, -2))
	tunnel, err = svc.GetItem(ctx, tunnel.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tunnel.Stock)
	assert.False(t, tunnel.InStock(1))

	inStock := true
	page, err := svc.QueryItems(ctx, &catalog.ItemFilter{InStock: &inStock}, nil, core.PageFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)

	items, err := svc.GetItems(ctx, []string{tunnel.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, svc.DeleteItem(ctx, burner.ID))
	_, err = svc.GetItem(ctx, burner.ID)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}
