package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/kenamplan/backend/apps/api/echo"
	"github.com/kenamplan/backend/core/cart"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/rental"
	"github.com/kenamplan/backend/core/user"
	"github.com/kenamplan/backend/tests"
)

func Test_cartApi(t *testing.T) {
	srv, app := setup(t)
	customer := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", "", nil, true)
	token := getToken(t, app.Conf, customer)
	cat := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", nil)
	dome := testutil.CreateItem(t, app.CatalogRepo, cat.ID, "Dome Tent", "dome-tent", "50000", 3, true)
	retired := testutil.CreateItem(t, app.CatalogRepo, cat.ID, "Old Tent", "old-tent", "10000", 3, false)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	end := start.Add(72 * time.Hour)
	body := func(itemID string, qty int, start, end time.Time) []byte {
		return []byte(fmt.Sprintf(`{"item_id": %q, "quantity": %d, "start_date": %q, "end_date": %q}`,
			itemID, qty, start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}

	runTests(t, srv, []httpTest{
		{name: "requires auth", path: "/api/cart", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "empty cart", path: "/api/cart", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, cart.NewCart(nil)),
		},
		{
			name: "start in the past", method: http.MethodPost, path: "/api/cart", token: token,
			body: body(dome.ID, 1, start.AddDate(0, 0, -5), end), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"start_date": "start date cannot be in the past"}),
		},
		{
			name: "too many", method: http.MethodPost, path: "/api/cart", token: token,
			body: body(dome.ID, 4, start, end), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"quantity": "only 3 left in stock"}),
		},
		{
			name: "inactive item", method: http.MethodPost, path: "/api/cart", token: token,
			body: body(retired.ID, 1, start, end), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"item_id": "this item is not available for rent"}),
		},
		{
			name: "missing quantity", method: http.MethodPost, path: "/api/cart", token: token,
			body: []byte(fmt.Sprintf(`{"item_id": %q}`, dome.ID)), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("add, update & remove", func(t *testing.T) {
		rec := httpTest{method: http.MethodPost, path: "/api/cart", token: token, body: body(dome.ID, 2, start, end)}.do(srv)
		assertStatus(t, rec, http.StatusCreated)
		var line cart.CartLine
		unmarshal(t, rec, &line)
		assert.Equal(t, 3, line.Days)
		assert.True(t, decimal.NewFromInt(300000).Equal(line.Subtotal), line.Subtotal.String())

		rec = httpTest{method: http.MethodPut, path: "/api/cart/" + line.ID, token: token, body: []byte(`{"quantity": 1}`)}.do(srv)
		assertStatus(t, rec, http.StatusOK)

		var crt cart.Cart
		rec = httpTest{path: "/api/cart", token: token}.do(srv)
		unmarshal(t, rec, &crt)
		require.Len(t, crt.Lines, 1)
		assert.Equal(t, 1, crt.ItemCount)
		assert.True(t, decimal.NewFromInt(150000).Equal(crt.Total), crt.Total.String())

		// someone else's line is not found
		other := testutil.CreateUser(t, app.UserRepo, "Sari", "sari", "sari@test.id", "", nil, true)
		rec = httpTest{method: http.MethodDelete, path: "/api/cart/" + line.ID, token: getToken(t, app.Conf, other)}.do(srv)
		assertStatus(t, rec, http.StatusNotFound)

		rec = httpTest{method: http.MethodDelete, path: "/api/cart/" + line.ID, token: token}.do(srv)
		assertStatus(t, rec, http.StatusNoContent)
		rec = httpTest{path: "/api/cart", token: token}.do(srv)
		unmarshal(t, rec, &crt)
		assert.Empty(t, crt.Lines)
	})
}

func Test_rentalApi_flow(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	customer := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", "", nil, true)
	stranger := testutil.CreateUser(t, app.UserRepo, "Sari", "sari", "sari@test.id", "", nil, true)
	adminToken := getToken(t, app.Conf, admin)
	token := getToken(t, app.Conf, customer)

	rate := decimal.NewFromInt(10)
	cat := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", &rate)
	dome := testutil.CreateItem(t, app.CatalogRepo, cat.ID, "Dome Tent", "dome-tent", "100", 2, true)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	end := start.Add(48 * time.Hour)

	rec := httpTest{
		method: http.MethodPost, path: "/api/cart", token: token,
		body: []byte(fmt.Sprintf(`{"item_id": %q, "quantity": 1, "start_date": %q, "end_date": %q}`,
			dome.ID, start.Format(time.RFC3339), end.Format(time.RFC3339))),
	}.do(srv)
	assertStatus(t, rec, http.StatusCreated)

	// checkout
	rec = httpTest{method: http.MethodPost, path: "/api/rentals/checkout", token: token, body: []byte(`{"notes": "pick up at noon"}`)}.do(srv)
	assertStatus(t, rec, http.StatusCreated)
	var r rental.Rental
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusPending, r.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(r.Total), r.Total.String())
	assert.Equal(t, "pick up at noon", r.Notes)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "Dome Tent", r.Items[0].ItemName)

	base := "/api/rentals/" + r.ID
	invalidTransition := marchallObj(t, httpErr{Error: rental.ErrInvalidTransition.Error()})
	runTests(t, srv, []httpTest{
		{
			name: "cart was emptied", method: http.MethodPost, path: "/api/rentals/checkout", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"items": cart.ErrEmptyCart.Error()}),
		},
		{name: "other customers cannot see it", path: base, token: getToken(t, app.Conf, stranger), wantCode: http.StatusNotFound},
		{name: "customers cannot confirm", method: http.MethodPost, path: base + "/confirm", token: token, wantCode: http.StatusForbidden},
		{name: "confirm without proof", method: http.MethodPost, path: base + "/confirm", token: adminToken, wantCode: http.StatusBadRequest, wantData: invalidTransition},
		{name: "return while pending", method: http.MethodPost, path: base + "/return", token: adminToken, body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: invalidTransition},
		{name: "unknown rental", path: "/api/rentals/nope", token: adminToken, wantCode: http.StatusNotFound},
	})

	// payment proof
	req, rec := newUploadRequest(t, base+"/payment-proof", token, "transfer.png", testutil.PNG())
	srv.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusWaitingConfirmation, r.Status)
	assert.NotEmpty(t, r.PaymentProof)

	// rejection sends it back to pending
	rec = httpTest{method: http.MethodPost, path: base + "/reject-payment", token: adminToken, body: []byte(`{}`)}.do(srv)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = httpTest{method: http.MethodPost, path: base + "/reject-payment", token: adminToken, body: []byte(`{"note": "blurry"}`)}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusPending, r.Status)

	req, rec = newUploadRequest(t, base+"/payment-proof", token, "transfer.png", testutil.PNG())
	srv.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusOK)

	// confirm takes the item from stock
	rec = httpTest{method: http.MethodPost, path: base + "/confirm", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusConfirmed, r.Status)
	assert.Equal(t, admin.ID, r.ConfirmedBy)
	it, err := app.CatalogSvc.GetItem(ctxBg, dome.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock)

	rec = httpTest{method: http.MethodPost, path: base + "/cancel", token: token}.do(srv)
	assertStatus(t, rec, http.StatusBadRequest)

	var payments []rental.Payment
	rec = httpTest{path: base + "/payments", token: token}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &payments)
	require.Len(t, payments, 2)
	statuses := []rental.PaymentStatus{payments[0].Status, payments[1].Status}
	assert.ElementsMatch(t, []rental.PaymentStatus{rental.PaymentRejected, rental.PaymentVerified}, statuses)

	// late return: 2h30 late is billed 3 started hours at the category rate
	returnedAt := end.Add(150 * time.Minute)
	var bd rental.ReturnBreakdown
	rec = httpTest{path: base + "/return-preview?returned_at=" + returnedAt.Format(time.RFC3339), token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &bd)
	assert.Equal(t, 3, bd.LateHours)
	require.Len(t, bd.Items, 1)
	assert.Equal(t, rental.RateSourceCategory, bd.Items[0].RateSource)
	assert.True(t, decimal.NewFromInt(30).Equal(bd.PenaltyTotal), bd.PenaltyTotal.String())

	rec = httpTest{path: base + "/return-preview?returned_at=yesterday", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = httpTest{
		method: http.MethodPost, path: base + "/return", token: adminToken,
		body: []byte(fmt.Sprintf(`{"returned_at": %q}`, returnedAt.Format(time.RFC3339))),
	}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	var ret ReturnResponse
	unmarshal(t, rec, &ret)
	assert.Equal(t, rental.StatusReturned, ret.Rental.Status)
	assert.Equal(t, 3, ret.Rental.LateHours)
	assert.True(t, decimal.NewFromInt(30).Equal(ret.Rental.PenaltyTotal), ret.Rental.PenaltyTotal.String())
	it, err = app.CatalogSvc.GetItem(ctxBg, dome.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Stock)

	rec = httpTest{method: http.MethodPost, path: base + "/complete", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusCompleted, r.Status)
	assert.NotNil(t, r.CompletedAt)

	t.Run("stats", func(t *testing.T) {
		var stats rental.Stats
		rec := httpTest{path: "/api/admin/stats", token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &stats)
		assert.Equal(t, 1, stats.ByStatus[rental.StatusCompleted])
		assert.True(t, decimal.NewFromInt(200).Equal(stats.RentalRevenue), stats.RentalRevenue.String())
		assert.True(t, decimal.NewFromInt(30).Equal(stats.PenaltyRevenue), stats.PenaltyRevenue.String())

		rec = httpTest{path: "/api/admin/stats", token: token}.do(srv)
		assertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("customer lists own rentals", func(t *testing.T) {
		var page struct {
			Count   int             `json:"count"`
			Results []rental.Rental `json:"results"`
		}
		rec := httpTest{path: "/api/rentals", token: token}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &page)
		assert.Equal(t, 1, page.Count)

		rec = httpTest{path: "/api/rentals", token: getToken(t, app.Conf, stranger)}.do(srv)
		unmarshal(t, rec, &page)
		assert.Equal(t, 0, page.Count)
	})
}

func Test_rentalApi_cancelAndOverdue(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	customer := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", "", nil, true)
	adminToken := getToken(t, app.Conf, admin)
	token := getToken(t, app.Conf, customer)
	cat := testutil.CreateCategory(t, app.CatalogRepo, "Stoves", "stoves", nil)
	stove := testutil.CreateItem(t, app.CatalogRepo, cat.ID, "Camp Stove", "camp-stove", "25000", 5, true)

	pending := app.Checkout(t, customer.ID, stove.ID, 1, time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour))
	rec := httpTest{method: http.MethodPost, path: "/api/rentals/" + pending.ID + "/cancel", token: token}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	var r rental.Rental
	unmarshal(t, rec, &r)
	assert.Equal(t, rental.StatusCancelled, r.Status)

	late := app.ConfirmedRental(t, customer, admin.ID, stove.ID, 2, time.Now().Add(-72*time.Hour), time.Now().Add(-24*time.Hour))
	app.ConfirmedRental(t, customer, admin.ID, stove.ID, 1, time.Now().Add(-24*time.Hour), time.Now().Add(24*time.Hour))

	var overdue []rental.Rental
	rec = httpTest{path: "/api/admin/overdue", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	unmarshal(t, rec, &overdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	it, err := app.CatalogSvc.GetItem(ctxBg, stove.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Stock)

	// out of stock at confirmation time
	big := app.Checkout(t, customer.ID, stove.ID, 2, time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour))
	_, err = app.CatalogSvc.UpdateItem(ctxBg, stove.ID, catalog.UpdateItem{Stock: intPtr(1)})
	require.NoError(t, err)
	req, rec := newUploadRequest(t, "/api/rentals/"+big.ID+"/payment-proof", token, "proof.png", testutil.PNG())
	srv.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusOK)
	rec = httpTest{method: http.MethodPost, path: "/api/rentals/" + big.ID + "/confirm", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusBadRequest)
	r, err = app.RentalSvc.Get(ctxBg, admin, big.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusWaitingConfirmation, r.Status)
}

func intPtr(i int) *int { return &i }

func Test_rentalApi_demotedAdmin(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app.Conf, admin)

	rec := httpTest{path: "/api/admin/stats", token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusOK)

	// the token still says admin
	admin.Roles = []string{user.RoleCustomer}
	_, err := app.UserRepo.UpdateUser(ctxBg, admin)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "stats", path: "/api/admin/stats", token: adminToken, wantCode: http.StatusForbidden},
		{name: "overdue", path: "/api/admin/overdue", token: adminToken, wantCode: http.StatusForbidden},
		{name: "confirm", method: http.MethodPost, path: "/api/rentals/any/confirm", token: adminToken, wantCode: http.StatusForbidden},
		{name: "users", path: "/api/users", token: adminToken, wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStatus(t, tt.do(srv), tt.wantCode)
		})
	}
}
