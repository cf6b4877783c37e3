package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/service"
)

// CookieIssuer writes the session cookie.
type CookieIssuer struct {
	tokens *auth.TokenService
	secure bool
}

// NewCookieIssuer builds an issuer. secure marks cookies HTTPS-only and
// should be set everywhere but local development.
func NewCookieIssuer(tokens *auth.TokenService, secure bool) *CookieIssuer {
	return &CookieIssuer{tokens: tokens, secure: secure}
}

// Issue signs sess and sets it as the session cookie.
func (c *CookieIssuer) Issue(w http.ResponseWriter, sess auth.Session) error {
	token, err := c.tokens.Generate(sess)
	if err != nil {
		return err
	}
	auth.SetCookie(w, token, c.tokens.TTL(), c.secure)
	return nil
}

// Clear removes the session cookie.
func (c *CookieIssuer) Clear(w http.ResponseWriter) {
	auth.ClearCookie(w, c.secure)
}

// AccountHandler serves sign-up, log-in, log-out and password reset.
type AccountHandler struct {
	accounts  *service.AccountService
	passwords *service.PasswordService
	cookies   *CookieIssuer
	render    *Renderer
	logger    *slog.Logger
}

func NewAccountHandler(
	accounts *service.AccountService,
	passwords *service.PasswordService,
	cookies *CookieIssuer,
	render *Renderer,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		passwords: passwords,
		cookies:   cookies,
		render:    render,
		logger:    logger,
	}
}

// HandleLoginPage shows the log-in form, or sends a signed-in caller home.
//
// HTTP: GET /login
func (h *AccountHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sessionFrom(r) != nil {
		redirect(w, r, "/")
		return
	}
	h.render.render(w, r, http.StatusOK, "login", "Log in", nil)
}

// HandleSignUpPage shows the sign-up form.
//
// HTTP: GET /signup
func (h *AccountHandler) HandleSignUpPage(w http.ResponseWriter, r *http.Request) {
	if sessionFrom(r) != nil {
		redirect(w, r, "/")
		return
	}
	h.render.render(w, r, http.StatusOK, "signup", "Sign up", nil)
}

// HandleSignUp creates an account and signs it in.
//
// HTTP: POST /submitUser
// FORM: username, email, password, longitude, latitude
func (h *AccountHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	sess, err := h.accounts.SignUp(r.Context(), service.SignUpRequest{
		Username:  r.FormValue("username"),
		Email:     r.FormValue("email"),
		Password:  r.FormValue("password"),
		Longitude: r.FormValue("longitude"),
		Latitude:  r.FormValue("latitude"),
	})
	if err != nil {
		// A taken username or email goes back to the form like any other
		// input problem.
		if errors.Is(err, apperror.ErrConflict) && !auth.WantsJSON(r) {
			redirect(w, r, "/signup?error="+url.QueryEscape(err.Error()))
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	h.signIn(w, r, sess, http.StatusCreated)
}

// HandleLogIn checks an email and password.
//
// HTTP: POST /validateLogin
// FORM: email, password
func (h *AccountHandler) HandleLogIn(w http.ResponseWriter, r *http.Request) {
	sess, err := h.accounts.LogIn(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) && !auth.WantsJSON(r) {
			redirect(w, r, "/login?error="+url.QueryEscape(err.Error()))
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	h.signIn(w, r, sess, http.StatusOK)
}

func (h *AccountHandler) signIn(w http.ResponseWriter, r *http.Request, sess auth.Session, status int) {
	if err := h.cookies.Issue(w, sess); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if auth.WantsJSON(r) {
		writeJSON(w, status, sess)
		return
	}
	redirect(w, r, "/")
}

// HandleLogOut drops the session cookie. The token itself stays valid until
// it expires.
//
// HTTP: GET /logout
func (h *AccountHandler) HandleLogOut(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	redirect(w, r, "/")
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), sessionFrom(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleForgotPage shows the reset request form.
//
// HTTP: GET /forgot
func (h *AccountHandler) HandleForgotPage(w http.ResponseWriter, r *http.Request) {
	h.render.render(w, r, http.StatusOK, "forgot", "Reset your password", map[string]bool{
		"Sent": r.URL.Query().Get("sent") != "",
	})
}

// HandleSendResetEmail mails a reset link. The answer is the same whether
// or not the email belongs to an account.
//
// HTTP: POST /sendResetEmail
// FORM: email
func (h *AccountHandler) HandleSendResetEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.passwords.RequestReset(r.Context(), r.FormValue("email")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if auth.WantsJSON(r) {
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
		return
	}
	redirect(w, r, "/forgot?sent=1")
}

// HandleResetPage shows the new-password form for a live token. An expired
// token sends the caller back to request a new one.
//
// HTTP: GET /passwordReset/{token}
func (h *AccountHandler) HandleResetPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.passwords.CheckToken(r.Context(), token); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			redirect(w, r, "/forgot?error="+url.QueryEscape(err.Error()))
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "reset", "Choose a new password", map[string]string{"Token": token})
}

// HandlePasswordUpdate sets the new password.
//
// HTTP: POST /passwordUpdate
// FORM: token, password, confirm
func (h *AccountHandler) HandlePasswordUpdate(w http.ResponseWriter, r *http.Request) {
	err := h.passwords.Reset(r.Context(), r.FormValue("token"), r.FormValue("password"), r.FormValue("confirm"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if auth.WantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	redirect(w, r, "/login")
}
