package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler runs the GitHub sign-in flow. It is only routed when GitHub
// credentials are configured.
//
//   - HandleGitHubLogin    redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback exchange the code, find or create the account, set the cookie
type AuthHandler struct {
	github   *auth.GitHubProvider
	accounts *service.AccountService
	cookies  *CookieIssuer
	logger   *slog.Logger
}

func NewAuthHandler(
	github *auth.GitHubProvider,
	accounts *service.AccountService,
	cookies *CookieIssuer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:   github,
		accounts: accounts,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when the two match, which
// proves the flow was started here.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state parameter against the cookie
//  2. Exchange the code for the GitHub profile
//  3. Load or create the matching account
//  4. Set the session cookie and go home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		redirect(w, r, "/login?error=GitHub+sign-in+was+cancelled")
		return
	}

	// --- Step 2: exchange ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: account ---
	sess, err := h.accounts.LogInWithGitHub(r.Context(), ghUser)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	// --- Step 4: cookie ---
	if err := h.cookies.Issue(w, sess); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	redirect(w, r, "/")
}
