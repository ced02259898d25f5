package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/catalog"
	"github.com/kenamplan/backend/core/user"
	"github.com/kenamplan/backend/tests"
)

func Test_catalogApi_categories(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	customer := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", "", nil, true)
	adminToken := getToken(t, app.Conf, admin)

	rate := decimal.RequireFromString("7.5")
	tents := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", &rate)
	stoves := testutil.CreateCategory(t, app.CatalogRepo, "Stoves", "stoves", nil)
	testutil.CreateItem(t, app.CatalogRepo, tents.ID, "Dome Tent", "dome-tent", "48", 2, true)

	tests := []httpTest{
		{name: "list", path: "/api/categories", wantCode: http.StatusOK, wantData: marchallList(t, stoves, tents)},
		{name: "by slug", path: "/api/categories/TENTS", wantCode: http.StatusOK, wantData: marchallObj(t, tents)},
		{name: "unknown slug", path: "/api/categories/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: catalog.ErrCategoryNotFound.Error()})},
		{
			name: "create requires admin", method: http.MethodPost, path: "/api/categories", token: getToken(t, app.Conf, customer),
			body: []byte(`{"name": "Bags"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "create without name", method: http.MethodPost, path: "/api/categories", token: adminToken,
			body: []byte(`{"slug": "bags"}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "create with taken slug", method: http.MethodPost, path: "/api/categories", token: adminToken,
			body: []byte(`{"name": "Tents"}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"slug": catalog.ErrSlugExists.Error()}),
		},
		{
			name: "negative penalty", method: http.MethodPost, path: "/api/categories", token: adminToken,
			body: []byte(`{"name": "Bags", "penalty_per_hour": "-1"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "delete non-empty", method: http.MethodDelete, path: "/api/categories/" + tents.ID, token: adminToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: catalog.ErrCategoryNotEmpty.Error()}),
		},
	}
	runTests(t, srv, tests)

	t.Run("create, update & delete", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPost, path: "/api/categories", token: adminToken,
			body: []byte(`{"name": " Carrier Bags ", "penalty_per_hour": "5"}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusCreated)
		var cat catalog.Category
		unmarshal(t, rec, &cat)
		assert.Equal(t, "Carrier Bags", cat.Name)
		assert.Equal(t, "carrier-bags", cat.Slug)
		require.NotNil(t, cat.PenaltyPerHour)
		assert.True(t, cat.PenaltyPerHour.Equal(decimal.NewFromInt(5)))

		rec = httpTest{
			method: http.MethodPut, path: "/api/categories/" + cat.ID, token: adminToken,
			body: []byte(`{"slug": "bags", "clear_penalty": true}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &cat)
		assert.Equal(t, "bags", cat.Slug)
		assert.Nil(t, cat.PenaltyPerHour)

		rec = httpTest{method: http.MethodDelete, path: "/api/categories/" + cat.ID, token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusNoContent)
		rec = httpTest{path: "/api/categories/bags"}.do(srv)
		assertStatus(t, rec, http.StatusNotFound)
	})
}

func Test_catalogApi_items(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app.Conf, admin)

	tents := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", nil)
	stoves := testutil.CreateCategory(t, app.CatalogRepo, "Stoves", "stoves", nil)
	dome := testutil.CreateItem(t, app.CatalogRepo, tents.ID, "Dome Tent", "dome-tent", "48", 2, true)
	tunnel := testutil.CreateItem(t, app.CatalogRepo, tents.ID, "Tunnel Tent", "tunnel-tent", "75.5", 0, true)
	stove := testutil.CreateItem(t, app.CatalogRepo, stoves.ID, "Gas Stove", "gas-stove", "15", 10, true)
	broken := testutil.CreateItem(t, app.CatalogRepo, stoves.ID, "Broken Stove", "broken-stove", "5", 1, false)

	ids := func(page core.Page[catalog.Item]) []string {
		res := make([]string, 0, len(page.Results))
		for _, it := range page.Results {
			res = append(res, it.ID)
		}
		return res
	}
	query := func(t *testing.T, path, token string) core.Page[catalog.Item] {
		rec := httpTest{path: path, token: token}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		var page core.Page[catalog.Item]
		unmarshal(t, rec, &page)
		return page
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  []string
	}{
		{name: "public hides inactive", path: "/api/items", want: []string{dome.ID, stove.ID, tunnel.ID}},
		{name: "admin sees all", path: "/api/items", token: adminToken, want: []string{broken.ID, dome.ID, stove.ID, tunnel.ID}},
		{name: "category", path: "/api/items?category=tents", want: []string{dome.ID, tunnel.ID}},
		{name: "in stock", path: "/api/items?in_stock=true&category=tents", want: []string{dome.ID}},
		{name: "price range", path: "/api/items?min_price=10&max_price=50", want: []string{dome.ID, stove.ID}},
		{name: "search", path: "/api/items?search=TENT", want: []string{dome.ID, tunnel.ID}},
		{name: "ordering", path: "/api/items?ordering=-price_per_day", want: []string{tunnel.ID, dome.ID, stove.ID}},
		{name: "page 2", path: "/api/items?page=2&page_size=2", want: []string{tunnel.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(query(t, tt.path, tt.token)))
		})
	}

	t.Run("page meta", func(t *testing.T) {
		page := query(t, "/api/items?page=2&page_size=2", "")
		assert.Equal(t, 3, page.Count)
		assert.Equal(t, 2, page.NumPages)
	})

	runTests(t, srv, []httpTest{
		{name: "retrieve", path: "/api/items/" + dome.ID, wantCode: http.StatusOK, wantData: marchallObj(t, dome)},
		{name: "retrieve inactive", path: "/api/items/" + broken.ID, wantCode: http.StatusNotFound},
		{name: "admin retrieves inactive", path: "/api/items/" + broken.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, broken)},
		{
			name: "create with unknown category", method: http.MethodPost, path: "/api/items", token: adminToken,
			body:     []byte(`{"category_id": "lol", "name": "Lamp", "price_per_day": "10", "stock": 1}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"category_id": catalog.ErrCategoryNotFound.Error()}),
		},
		{
			name: "create with negative stock", method: http.MethodPost, path: "/api/items", token: adminToken,
			body:     []byte(`{"category_id": "` + stoves.ID + `", "name": "Lamp", "price_per_day": "10", "stock": -1}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("create & update", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPost, path: "/api/items", token: adminToken,
			body: []byte(`{"category_id": "` + stoves.ID + `", "name": "Camp Lamp", "price_per_day": "12.345", "stock": 3}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusCreated)
		var it catalog.Item
		unmarshal(t, rec, &it)
		assert.Equal(t, "camp-lamp", it.Slug)
		assert.True(t, it.IsActive)
		assert.Equal(t, "12.35", it.PricePerDay.StringFixed(2))

		rec = httpTest{
			method: http.MethodPut, path: "/api/items/" + it.ID, token: adminToken,
			body: []byte(`{"stock": 5, "is_active": false, "penalty_per_hour": "2"}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &it)
		assert.Equal(t, 5, it.Stock)
		assert.False(t, it.IsActive)
		assert.True(t, it.PenaltyPerHour.Equal(decimal.NewFromInt(2)))
	})
}

func Test_catalogApi_itemImage(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app.Conf, admin)
	tents := testutil.CreateCategory(t, app.CatalogRepo, "Tents", "tents", nil)
	dome := testutil.CreateItem(t, app.CatalogRepo, tents.ID, "Dome Tent", "dome-tent", "48", 2, true)
	path := "/api/items/" + dome.ID + "/image"

	t.Run("not an image", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, adminToken, "notes.txt", strings.NewReader("just some text"))
		srv.ServeHTTP(rec, req)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httpTest{method: http.MethodPost, path: path, token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	var first string
	t.Run("valid", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, adminToken, "dome.png", testutil.PNG())
		srv.ServeHTTP(rec, req)
		assertStatus(t, rec, http.StatusOK)
		var it catalog.Item
		unmarshal(t, rec, &it)
		assert.True(t, strings.HasPrefix(it.ImageURL, app.Conf.Uploads.BaseURL+"/"))
		first = it.ImageURL

		ok, err := afero.Exists(app.UploadsFs, strings.TrimPrefix(first, app.Conf.Uploads.BaseURL+"/"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("replacing deletes the previous image", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, adminToken, "dome2.png", testutil.PNG())
		srv.ServeHTTP(rec, req)
		assertStatus(t, rec, http.StatusOK)

		ok, err := afero.Exists(app.UploadsFs, strings.TrimPrefix(first, app.Conf.Uploads.BaseURL+"/"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
