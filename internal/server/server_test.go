package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/config"
	sqliteRepo "github.com/sakif/skillbarter/internal/repository/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TemplateDir = "../../web/templates"
	cfg.StaticDir = "../../web/static"
	cfg.Images.UploadDir = t.TempDir()
	cfg.Store.SQLitePath = ":memory:"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	store, err := sqliteRepo.New(cfg.Store.SQLitePath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, store, logger)
	require.NoError(t, err)
	return s.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_Public(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantLoc    string
	}{
		{"home", http.MethodGet, "/", http.StatusOK, ""},
		{"login page", http.MethodGet, "/login", http.StatusOK, ""},
		{"signup page", http.MethodGet, "/signup", http.StatusOK, ""},
		{"forgot page", http.MethodGet, "/forgot", http.StatusOK, ""},
		{"stylesheet", http.MethodGet, "/static/style.css", http.StatusOK, ""},
		{"fallback page", http.MethodGet, "/404", http.StatusNotFound, ""},
		{"unknown route", http.MethodGet, "/no/such/page", http.StatusNotFound, ""},
		{"unknown category", http.MethodGet, "/category/Nothing", http.StatusSeeOther, "/404"},
		{"unknown reset token", http.MethodGet, "/passwordReset/abc", http.StatusSeeOther, "/404"},
		{"github off", http.MethodGet, "/auth/github/login", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantLoc, rr.Header().Get("Location"))
		})
	}
}

func TestRoutes_RequireSession(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/skill/Baking", http.StatusSeeOther},
		{http.MethodGet, "/history/visited", http.StatusSeeOther},
		{http.MethodPost, "/add-skill/cv37rs3pp9olc6atsptg", http.StatusSeeOther},
		{http.MethodPost, "/remove-skill/cv37rs3pp9olc6atsptg", http.StatusSeeOther},
		{http.MethodPost, "/editProfile/upload", http.StatusSeeOther},
		{http.MethodPost, "/editPortfolio/upload?skill=Baking", http.StatusSeeOther},
		{http.MethodPost, "/submit-rating", http.StatusSeeOther},
		{http.MethodGet, "/api/me", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusSeeOther {
				assert.Equal(t, "/login", rr.Header().Get("Location"))
			}
		})
	}
}

func TestRoutes_SignUpThenMe(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	form := url.Values{"username": {"alice"}, "email": {"alice@example.com"}, "password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/submitUser", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(h, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	var token *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			token = c
		}
	}
	require.NotNil(t, token)
	assert.True(t, token.HttpOnly)
	assert.False(t, token.Secure, "development cookies work over plain http")

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(token)
	rr = serve(h, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"username":"alice"`)

	req = httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(token)
	rr = serve(h, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Edit profile")
}

func TestRoutes_GitHubConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.GitHub.ClientID = "client-id"
	cfg.GitHub.ClientSecret = "client-secret"
	cfg.GitHub.CallbackURL = "http://localhost:8080/auth/github/callback"
	h := newTestServer(t, cfg)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "https://github.com/login/oauth/authorize"))

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=x&state=y", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNew_BadTemplateDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.TemplateDir = t.TempDir()

	store, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)

	_, err = New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
