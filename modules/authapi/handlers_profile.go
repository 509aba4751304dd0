package authapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authd/svc/auth"
)

func (m *Module) getProfile(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, identity.Profile())
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Kind        *string `json:"kind,omitempty"`
	Locale      *string `json:"locale,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	PictureURL  *string `json:"picture_url,omitempty"`
}

func (m *Module) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req updateProfileRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	patch := auth.ProfilePatch{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Locale:      req.Locale,
		Currency:    req.Currency,
		PictureURL:  req.PictureURL,
	}
	if req.Kind != nil {
		kind := auth.Kind(*req.Kind)
		patch.Kind = &kind
	}

	profile, err := m.account.UpdateProfile(r.Context(), identity.ID, patch)
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (m *Module) deleteAccount(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	if err := m.account.DeleteAccount(r.Context(), identity.ID); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	RefreshToken    string `json:"refresh_token,omitempty"` // session to keep alive
}

func (m *Module) changePassword(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.account.ChangePassword(r.Context(), identity, req.CurrentPassword, req.NewPassword, req.RefreshToken); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

func (m *Module) listSessions(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	sessions, err := m.account.ListSessions(r.Context(), identity.ID, r.Header.Get("X-Refresh-Token"))
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (m *Module) revokeSession(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		m.respondError(w, r, auth.ErrSessionNotFound)
		return
	}
	if err := m.account.RevokeSession(r.Context(), identity.ID, sessionID); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
