package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenamplan/backend/core/user"
	emailsvc "github.com/kenamplan/backend/services/email"
	"github.com/kenamplan/backend/tests"
)

func Test_userApi_signup(t *testing.T) {
	srv, app := setup(t)
	testutil.CreateUser(t, app.UserRepo, "Taken", "taken", "taken@test.id", testPwd, nil, true)

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/api/users/signup", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"email":            "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/signup",
			body: marchallObj(t, user.SignUp{
				Name: "Budi", Email: "budi@test.id", Password: "12345678", PasswordConfirm: "12345678",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users/signup",
			body: marchallObj(t, user.SignUp{
				Name: "Budi", Email: "TAKEN@test.id", Password: testPwd, PasswordConfirm: testPwd,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	runTests(t, srv, tests)

	t.Run("valid", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/users/signup", marchallObj(t, user.SignUp{
			Name: "Budi Santoso", Username: "Budi", Email: "budi@test.id",
			Password: testPwd, PasswordConfirm: testPwd,
		}))
		srv.ServeHTTP(rec, req)
		assertStatus(t, rec, http.StatusCreated)

		var resp struct {
			User  user.User `json:"user"`
			Token string    `json:"token"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, "budi", resp.User.Username)
		assert.Equal(t, []string{user.RoleCustomer}, resp.User.Roles)
		assert.NotEmpty(t, resp.Token)

		// the token works right away
		req, rec = newAuthRequest(http.MethodGet, "/api/users/me", resp.Token)
		srv.ServeHTTP(rec, req)
		assertStatus(t, rec, http.StatusOK)
	})
}

func Test_userApi_login(t *testing.T) {
	srv, app := setup(t)
	testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", testPwd, nil, true)
	testutil.CreateUser(t, app.UserRepo, "Nakal", "nakal", "nakal@test.id", testPwd, nil, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, map[string]string{"username": uname, "password": pwd})
	}
	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{name: "unknown user", method: http.MethodPost, path: "/api/users/login", body: login("nobody", testPwd), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: login("budi", "nope"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login", body: login("nakal", testPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runTests(t, srv, tests)

	for _, uname := range []string{"budi", "BUDI@test.id"} {
		t.Run("valid "+uname, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/users/login", login(uname, testPwd))
			srv.ServeHTTP(rec, req)
			assertStatus(t, rec, http.StatusOK)

			var resp struct{ Token string }
			unmarshal(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			req, rec = newAuthRequest(http.MethodGet, "/api/users/me", resp.Token)
			srv.ServeHTTP(rec, req)
			assertStatus(t, rec, http.StatusOK)
			var me user.User
			unmarshal(t, rec, &me)
			assert.Equal(t, "budi", me.Username)
			assert.False(t, me.LastLogin.IsZero())
		})
	}
}

func Test_userApi_auth(t *testing.T) {
	srv, app := setup(t)
	usr := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", testPwd, nil, true)
	gone := testutil.CreateUser(t, app.UserRepo, "Gone", "gone", "gone@test.id", testPwd, nil, false)

	otherConf := *app.Conf
	otherConf.SecretKey = "not-the-secret"

	tests := []httpTest{
		{name: "no token", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "malformed token", path: "/api/users/me", token: "lol",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "bad signature", path: "/api/users/me", token: getToken(t, &otherConf, usr),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "deactivated user", path: "/api/users/me", token: getToken(t, app.Conf, gone),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runTests(t, srv, tests)

	t.Run("expired token", func(t *testing.T) {
		conf := *app.Conf
		conf.Server.JWTExpirationDelta = -time.Minute
		rec := httpTest{path: "/api/users/me", token: getToken(t, &conf, usr)}.do(srv)
		assertStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("token refresh", func(t *testing.T) {
		rec := httpTest{method: http.MethodPost, path: "/api/users/token-refresh", token: getToken(t, app.Conf, usr)}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		var resp struct{ Token string }
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("token refresh expired", func(t *testing.T) {
		conf := *app.Conf
		conf.Server.JWTRefreshExpirationDelta = -time.Minute
		refreshSrv, refreshApp := setup(t, &conf)
		u := testutil.CreateUser(t, refreshApp.UserRepo, "Budi", "budi", "budi@test.id", testPwd, nil, true)
		rec := httpTest{method: http.MethodPost, path: "/api/users/token-refresh", token: getToken(t, &conf, u)}.do(refreshSrv)
		assertStatus(t, rec, http.StatusForbidden)
	})
}

func Test_userApi_query(t *testing.T) {
	srv, app := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	budi := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", "", nil, true, now)
	sari := testutil.CreateUser(t, app.UserRepo, "Sari", "sari", "sari@test.id", "", nil, true, now.Add(time.Hour))
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", "", []string{user.RoleAdmin}, true, now.Add(2*time.Hour))
	owner := testutil.CreateUser(t, app.UserRepo, "Owner", "owner", "owner@test.id", "", []string{user.RoleAdminOwner}, true, now.Add(3*time.Hour))
	nakal := testutil.CreateUser(t, app.UserRepo, "Nakal", "nakal", "nakal@test.id", "", nil, false, now.Add(4*time.Hour))

	adminToken := getToken(t, app.Conf, admin)

	tests := []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: getToken(t, app.Conf, budi),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/api/users", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, budi, sari, admin, owner, nakal)},
		{name: "ordering", path: path("", "-created_at", nil), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, nakal, owner, admin, sari, budi)},
		{name: "search", path: path("SAR", "", nil), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, sari)},
		{name: "search unknown", path: path("lol", "", nil), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, admin, owner)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, nakal)},
		{name: "roles", path: "/api/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	}
	runTests(t, srv, tests)
}

func Test_userApi_detail(t *testing.T) {
	srv, app := setup(t)
	budi := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", testPwd, nil, true)
	sari := testutil.CreateUser(t, app.UserRepo, "Sari", "sari", "sari@test.id", testPwd, nil, true)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", testPwd, []string{user.RoleAdmin}, true)
	owner := testutil.CreateUser(t, app.UserRepo, "Owner", "owner", "owner@test.id", testPwd, []string{user.RoleAdminOwner}, true)

	budiToken := getToken(t, app.Conf, budi)
	adminToken := getToken(t, app.Conf, admin)
	notFound := marchallObj(t, httpErr{Error: "not found"})
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "self", path: "/api/users/" + budi.ID, token: budiToken, wantCode: http.StatusOK, wantData: marchallObj(t, budi)},
		{name: "someone else", path: "/api/users/" + sari.ID, token: budiToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: "/api/users/" + sari.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, sari)},
		{name: "unknown", path: "/api/users/lol", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "customer cannot change roles", method: http.MethodPut, path: "/api/users/" + budi.ID, token: budiToken,
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "admin cannot grant a higher role", method: http.MethodPut, path: "/api/users/" + budi.ID, token: adminToken,
			body:     []byte(`{"roles": ["admin:owner"]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "cannot delete a higher role", method: http.MethodDelete, path: "/api/users/" + owner.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "customer cannot delete", method: http.MethodDelete, path: "/api/users/" + budi.ID, token: budiToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
	}
	runTests(t, srv, tests)

	t.Run("update profile", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPut, path: "/api/users/" + budi.ID, token: budiToken,
			body: []byte(`{"name": "Budi Santoso", "address": "  Jl. Merdeka 1, Bandung "}`),
		}.do(srv)
		assertStatus(t, rec, http.StatusOK)
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Budi Santoso", usr.Name)
		assert.Equal(t, "Jl. Merdeka 1, Bandung", usr.Address)
		assert.Equal(t, "budi", usr.Username)
	})

	t.Run("admin deactivates", func(t *testing.T) {
		rec := httpTest{method: http.MethodPut, path: "/api/users/" + sari.ID, token: adminToken, body: []byte(`{"is_active": false}`)}.do(srv)
		assertStatus(t, rec, http.StatusOK)

		rec = httpTest{path: "/api/users/me", token: getToken(t, app.Conf, sari)}.do(srv)
		assertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := httpTest{method: http.MethodDelete, path: "/api/users/" + sari.ID, token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusNoContent)

		rec = httpTest{path: "/api/users/" + sari.ID, token: adminToken}.do(srv)
		assertStatus(t, rec, http.StatusNotFound)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	srv, app := setup(t)
	budi := testutil.CreateUser(t, app.UserRepo, "Budi", "budi", "budi@test.id", testPwd, nil, true)

	success := marchallObj(t, map[string]string{
		"success": "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
	tests := []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/api/users/password-reset", body: []byte(`{"email": "lol"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset", body: []byte(`{"email": "x@test.id"}`), wantCode: http.StatusOK, wantData: success},
	}
	runTests(t, srv, tests)
	assert.Empty(t, emailsvc.Sent())

	rec := httpTest{method: http.MethodPost, path: "/api/users/password-reset", body: []byte(`{"email": "BUDI@test.id"}`)}.do(srv)
	assertStatus(t, rec, http.StatusOK)
	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_reset", sent[0].TemplateName)
	assert.Equal(t, budi.Email, sent[0].To[0].Address)

	data := sent[0].TemplateData.(map[string]interface{})
	newPwd := "N3w.Pwd!Kp"
	confirm := func(token string) []byte {
		return marchallObj(t, user.ResetUserPassword{UID: data["UID"].(string), Token: token, Password: newPwd, PasswordConfirm: newPwd})
	}

	runTests(t, srv, []httpTest{
		{
			name: "bad token", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm("lol-lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"token": "invalid value"}),
		},
		{
			name: "valid", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm(data["Token"].(string)),
			wantCode: http.StatusOK, wantData: marchallObj(t, map[string]string{"success": "Password has been reset with the new password."}),
		},
	})

	rec = httpTest{method: http.MethodPost, path: "/api/users/login", body: marchallObj(t, map[string]string{"username": "budi", "password": newPwd})}.do(srv)
	assertStatus(t, rec, http.StatusOK)
}

func Test_userApi_create(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.id", testPwd, []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app.Conf, admin)

	nu := func(roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "Staff", Username: "staff", Email: "staff@test.id", Password: testPwd, PasswordConfirm: testPwd, Roles: roles,
		})
	}
	runTests(t, srv, []httpTest{
		{
			name: "higher role", method: http.MethodPost, path: "/api/users", token: adminToken, body: nu(user.RoleAdminOwner),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "invalid role", method: http.MethodPost, path: "/api/users", token: adminToken, body: nu("lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
	})

	rec := httpTest{method: http.MethodPost, path: "/api/users", token: adminToken, body: nu(user.RoleAdmin)}.do(srv)
	assertStatus(t, rec, http.StatusCreated)
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)

	rec = httpTest{method: http.MethodDelete, path: "/api/users?id=" + usr.ID, token: adminToken}.do(srv)
	assertStatus(t, rec, http.StatusNoContent)
	_, err := app.UserSvc.GetByID(context.Background(), usr.ID)
	assert.Equal(t, user.ErrNotFound, err)
}
