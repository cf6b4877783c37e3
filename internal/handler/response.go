package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// uploadFailure is the body for image and geocoding failures. The edit
// forms post with fetch and read it on both route kinds.
type uploadFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON sets headers, then status, then encodes the body. Headers set
// after WriteHeader are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// respondError maps a service error to a response.
//
//	error             browser route               API route
//	Unauthenticated   303 /login                  401
//	NotFound          303 /404                    404
//	Validation        303 back to form ?error=    400
//	Forbidden         303 /profile                403
//	ImageUpload, Geo  500 {"success":false}       same
//	Conflict          409                         409
//	anything else     500                         500
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	jsonRoute := auth.WantsJSON(r)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if jsonRoute {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "An internal error occurred",
			})
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	switch {
	case errors.Is(err, apperror.ErrImageUpload), errors.Is(err, apperror.ErrGeoResolution):
		writeJSON(w, http.StatusInternalServerError, uploadFailure{Success: false, Message: appErr.Message})

	case errors.Is(err, apperror.ErrUnauthenticated):
		if jsonRoute {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{"unauthenticated", appErr.Message, ""})
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)

	case errors.Is(err, apperror.ErrNotFound):
		if jsonRoute {
			writeJSON(w, http.StatusNotFound, ErrorResponse{"not_found", appErr.Message, ""})
			return
		}
		http.Redirect(w, r, "/404", http.StatusSeeOther)

	case errors.Is(err, apperror.ErrValidation):
		if jsonRoute {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{"validation_error", appErr.Message, appErr.Field})
			return
		}
		http.Redirect(w, r, backToForm(r, appErr.Message), http.StatusSeeOther)

	case errors.Is(err, apperror.ErrForbidden):
		if jsonRoute {
			writeJSON(w, http.StatusForbidden, ErrorResponse{"forbidden", appErr.Message, ""})
			return
		}
		http.Redirect(w, r, "/profile", http.StatusSeeOther)

	case errors.Is(err, apperror.ErrConflict):
		if jsonRoute {
			writeJSON(w, http.StatusConflict, ErrorResponse{"conflict", appErr.Message, appErr.Field})
			return
		}
		http.Error(w, appErr.Message, http.StatusConflict)

	default:
		logger.Error("unmapped application error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{"internal_error", "An internal error occurred", ""})
	}
}

// backToForm builds the redirect to the page the form was posted from,
// carrying msg in ?error=. Only the Referer's path and query are kept, so
// the redirect can never leave this site.
func backToForm(r *http.Request, msg string) string {
	target := &url.URL{Path: "/"}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" {
		target.Path = ref.Path
		target.RawQuery = ref.RawQuery
	}
	q := target.Query()
	q.Set("error", msg)
	target.RawQuery = q.Encode()
	return target.String()
}

// redirect is a 303 See Other: the browser follows it with a GET, which is
// what a form post wants.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// sessionFrom returns the request's session or nil for an anonymous caller.
func sessionFrom(r *http.Request) *auth.Session {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		return &sess
	}
	return nil
}

func profileURL(username string) string {
	return "/profile?id=" + url.QueryEscape(username)
}
