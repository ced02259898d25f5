package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
	"github.com/kenamplan/backend/core/user"
	"github.com/kenamplan/backend/tests"
)

func Test_articleApi(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app.Conf, admin)

	tips := testutil.CreateArticle(t, app.ArticleRepo, "Camping Tips", "camping-tips", true, admin.ID)
	draft := testutil.CreateArticle(t, app.ArticleRepo, "Upcoming Gear", "upcoming-gear", false, admin.ID)
	notFound := marchallObj(t, httpErr{Error: article.ErrNotFound.Error()})

	runTests(t, srv, []httpTest{
		{name: "published", path: "/api/articles/camping-tips", wantCode: http.StatusOK, wantData: marchallObj(t, tips)},
		{name: "draft is hidden", path: "/api/articles/upcoming-gear", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin reads draft", path: "/api/articles/upcoming-gear", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, draft)},
		{
			name: "create requires content", method: http.MethodPost, path: "/api/articles", token: adminToken,
			body: []byte(`{"title": "Hello"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"content": "this field is required"}),
		},
		{
			name: "create with taken slug", method: http.MethodPost, path: "/api/articles", token: adminToken,
			body: []byte(`{"title": "Camping Tips", "content": "again"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"slug": article.ErrSlugExists.Error()}),
		},
		{name: "create requires auth", method: http.MethodPost, path: "/api/articles", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
	})

	t.Run("list", func(t *testing.T) {
		var page core.Page[article.Article]
		rec := httpTest{path: "/api/articles"}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &page)
		assert.Equal(t, 1, page.Count)

		rec = httpTest{path: "/api/articles", token: adminToken}.do(srv)
		unmarshal(t, rec, &page)
		assert.Equal(t, 2, page.Count)
	})

	t.Run("create, publish & delete", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPost, path: "/api/articles", token: adminToken,
			body: []byte(`{"title": "How To Pitch A Tent", "content": "Step one..."}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusCreated)
		var a article.Article
		unmarshal(t, rec, &a)
		assert.Equal(t, "how-to-pitch-a-tent", a.Slug)
		assert.Equal(t, admin.ID, a.AuthorID)
		assert.False(t, a.IsPublished)
		assert.Nil(t, a.PublishedAt)

		rec = httpTest{method: http.MethodPut, path: "/api/articles/" + a.ID, token: adminToken, body: []byte(`{"is_published": true}`)}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		unmarshal(t, rec, &a)
		assert.True(t, a.IsPublished)
		assert.NotNil(t, a.PublishedAt)

		rec = httpTest{path: "/api/articles/how-to-pitch-a-tent"}.do(srv)
		assertStatus(t, rec, http.StatusOK)

		rec = httpTest{method: http.MethodDelete, path: "/api/articles/" + a.ID, token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusNoContent)
		rec = httpTest{path: "/api/articles/how-to-pitch-a-tent"}.do(srv)
		assertStatus(t, rec, http.StatusNotFound)
	})
}
