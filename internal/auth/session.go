package auth

import "github.com/sakif/skillbarter/internal/model"

// Session is the signed-in caller as carried in the token cookie.
//
// UserID and Username are authoritative. Email and UserIcon are a cached
// projection of the user document, refreshed with Patch whenever a profile
// write commits one of them. Anything else (skills, history, ratings) is
// always re-read from the store.
type Session struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email"`
	UserIcon string `json:"userIcon"`
}

// NewSession projects u into a Session.
func NewSession(u *model.User) Session {
	return Session{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		UserIcon: u.UserIcon,
	}
}

// Patch overwrites the cached fields named in a committed change-set.
// Keys the session does not carry are ignored. It reports whether anything
// changed, so callers know to re-issue the cookie.
func (s *Session) Patch(fields map[string]string) bool {
	changed := false
	for key, value := range fields {
		var dst *string
		switch key {
		case "email":
			dst = &s.Email
		case "userIcon":
			dst = &s.UserIcon
		default:
			continue
		}
		if *dst != value {
			*dst = value
			changed = true
		}
	}
	return changed
}
