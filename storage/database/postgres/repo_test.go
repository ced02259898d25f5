package pgrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
	"github.com/kenamplan/backend/storage/database"
	pgrepos "github.com/kenamplan/backend/storage/database/postgres"
)

// openTx connects to TEST_DATABASE_URL, migrates it & returns a transaction rolled back at cleanup.
func openTx(t *testing.T) *sqlx.Tx {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.OpenURL(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func seed(t *testing.T, tx *sqlx.Tx) (user.User, catalog.Item) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	usr := user.User{Name: "Jane", Username: "jane", Email: "jane@kenamplan.test", Roles: []string{user.RoleCustomer}, CreatedAt: now, UpdatedAt: now}
	usr.SetActive(true)
	require.NoError(t, usr.SetPassword("s3cret!Pass"))
	usr, err := pgrepos.NewUserRepository(tx).CreateUser(ctx, usr)
	require.NoError(t, err)

	catRepo := pgrepos.NewCatalogRepository(tx)
	cat, err := catRepo.CreateCategory(ctx, catalog.Category{Name: "Tents", Slug: "tents", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	it, err := catRepo.CreateItem(ctx, catalog.Item{
		CategoryID:  cat.ID,
		Name:        "Dome tent",
		Slug:        "dome-tent",
		PricePerDay: decimal.NewFromInt(48),
		Stock:       2,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	return usr, it
}

func TestUserRepository(t *testing.T) {
	tx := openTx(t)
	ctx := context.Background()
	usr, _ := seed(t, tx)
	repo := pgrepos.NewUserRepository(tx)

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"jane@kenamplan.test", "jane@kenamplan.test"}})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, []string{user.RoleCustomer}, got.Roles)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
	assert.Equal(t, user.ErrNotFound, err)

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "jane", "", nil))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "jane", "jane@kenamplan.test", []user.User{usr}))

	customers, err := repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleCustomer}, Search: "jan"}, nil)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestAdjustStock(t *testing.T) {
	tx := openTx(t)
	ctx := context.Background()
	_, it := seed(t, tx)
	repo := pgrepos.NewCatalogRepository(tx)

	require.NoError(t, repo.AdjustStock(ctx, it.ID, -2))
	assert.Equal(t, catalog.ErrInsufficientStock, repo.AdjustStock(ctx, it.ID, -1))
	assert.Equal(t, catalog.ErrItemNotFound, repo.AdjustStock(ctx, "1f0d7c7e-8d7a-4f6c-9c43-1f0e0a6b2d11", 1))

	got, err := repo.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestRentalRepository(t *testing.T) {
	tx := openTx(t)
	ctx := context.Background()
	usr, it := seed(t, tx)
	repo := pgrepos.NewRentalRepository(tx)

	now := time.Now().UTC().Truncate(time.Microsecond)
	start, end := now.Add(24*time.Hour), now.Add(72*time.Hour)
	r, err := repo.CreateRental(ctx, rental.Rental{
		Code:      rental.NewCode(now),
		UserID:    usr.ID,
		Status:    rental.StatusPending,
		StartDate: start,
		EndDate:   end,
		Total:     decimal.NewFromInt(96),
		CreatedAt: now,
		UpdatedAt: now,
		Items: []rental.RentalItem{{
			ItemID:      it.ID,
			ItemName:    it.Name,
			Quantity:    1,
			PricePerDay: it.PricePerDay,
			StartDate:   start,
			EndDate:     end,
			Days:        2,
			Subtotal:    decimal.NewFromInt(96),
		}},
	})
	require.NoError(t, err)

	t.Run("conditional update", func(t *testing.T) {
		r.Status = rental.StatusWaitingConfirmation
		_, err := repo.UpdateRental(ctx, r, rental.StatusPending)
		require.NoError(t, err)

		_, err = repo.UpdateRental(ctx, r, rental.StatusPending)
		assert.Equal(t, rental.ErrInvalidTransition, err)
	})

	t.Run("query with items", func(t *testing.T) {
		rentals, count, err := repo.QueryRentals(ctx, &rental.QueryFilter{UserID: usr.ID}, nil, &core.PageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		require.Len(t, rentals, 1)
		require.Len(t, rentals[0].Items, 1)
		assert.True(t, rentals[0].Items[0].Subtotal.Equal(decimal.NewFromInt(96)))
	})

	t.Run("stats", func(t *testing.T) {
		verifiedAt := now
		_, err := repo.CreatePayment(ctx, rental.Payment{
			RentalID:   r.ID,
			Kind:       rental.PaymentKindRental,
			Amount:     decimal.NewFromInt(96),
			Status:     rental.PaymentVerified,
			CreatedAt:  now,
			VerifiedAt: &verifiedAt,
		})
		require.NoError(t, err)

		stats, err := repo.Stats(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.ByStatus[rental.StatusWaitingConfirmation], 1)
		assert.True(t, stats.RentalRevenue.GreaterThanOrEqual(decimal.NewFromInt(96)))
	})
	// leaves the transaction aborted, keep it last
	t.Run("taken code", func(t *testing.T) {
		_, err := repo.CreateRental(ctx, rental.Rental{
			Code:      r.Code,
			UserID:    usr.ID,
			Status:    rental.StatusPending,
			StartDate: start,
			EndDate:   end,
			Total:     decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		})
		assert.ErrorIs(t, err, rental.ErrCodeTaken)
	})
}
