package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/service"
)

// maxUploadSize caps a multipart body, image included.
const maxUploadSize = 10 << 20

// ProfileHandler accepts the edit-profile form.
type ProfileHandler struct {
	profiles *service.ProfileService
	cookies  *CookieIssuer
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, cookies *CookieIssuer, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, cookies: cookies, logger: logger}
}

// HandleUpdate applies an edit-profile submission. Every text field of the
// form is part of the change-set; the optional file field is the new icon.
// When the change touches what the session carries, the cookie is re-issued
// so the next page shows the new email and icon.
//
// HTTP: POST /editProfile/upload (multipart/form-data)
// Auth: Required
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	changes := make(map[string]string, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			changes[key] = values[0]
		}
	}

	icon, closeIcon, err := formUpload(r, "userIcon")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	defer closeIcon()

	sess := sessionFrom(r)
	if sess == nil {
		respondError(w, r, h.logger, apperror.Unauthenticated("sign in to edit your profile"))
		return
	}
	before := *sess
	if err := h.profiles.Update(r.Context(), sess, changes, icon); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if *sess != before {
		if err := h.cookies.Issue(w, *sess); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}

	if wantsFetch(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	redirect(w, r, profileURL(sess.Username))
}

// parseMultipart reads a multipart body of at most maxUploadSize. A
// malformed or oversized body is a validation failure.
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return apperror.ValidationFailed("form", fmt.Sprintf("could not read the form: %v", err))
	}
	return nil
}

// formUpload returns the file posted as field, or nil when the form has
// none. The returned func closes the file.
func formUpload(r *http.Request, field string) (*service.Upload, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperror.ValidationFailed(field, fmt.Sprintf("could not read %s: %v", field, err))
	}
	if header.Size == 0 {
		file.Close()
		return nil, func() {}, nil
	}
	return &service.Upload{Filename: header.Filename, File: file}, func() { closeFile(file) }, nil
}

func closeFile(f multipart.File) {
	_ = f.Close()
}

// wantsFetch reports whether the form was posted by script rather than by
// a plain browser submit.
func wantsFetch(r *http.Request) bool {
	return auth.WantsJSON(r) || r.Header.Get("X-Requested-With") == "fetch"
}
