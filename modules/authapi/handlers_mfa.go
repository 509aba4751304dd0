package authapi

import (
	"net/http"

	"github.com/dmitrymomot/authd/svc/auth"
)

func (m *Module) mfaStatus(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	status, err := m.mfa.Status(identity)
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (m *Module) totpSetup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	setup, err := m.mfa.SetupTOTP(r.Context(), identity)
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (m *Module) totpActivate(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req codeRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.mfa.ActivateTOTP(r.Context(), identity, req.Code, deviceMeta(r)); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totp_enabled": true})
}

func (m *Module) totpDisable(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req codeRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.mfa.DisableTOTP(r.Context(), identity, req.Code, deviceMeta(r)); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totp_enabled": false})
}

func (m *Module) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req codeRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	codes, err := m.mfa.RegenerateBackupCodes(r.Context(), identity, req.Code, deviceMeta(r))
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (m *Module) verifyBackupCode(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req codeRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.mfa.VerifyBackupCode(r.Context(), identity, req.Code, deviceMeta(r)); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (m *Module) enableEmailMFA(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	if err := m.mfa.EnableEmailMFA(r.Context(), identity); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email_mfa_enabled": true})
}

func (m *Module) disableEmailMFA(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	if err := m.mfa.DisableEmailMFA(r.Context(), identity); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email_mfa_enabled": false})
}

func (m *Module) sendEmailOTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	if err := m.mfa.SendEmailOTP(r.Context(), identity); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code_sent": true})
}

func (m *Module) verifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())

	var req codeRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.mfa.VerifyEmailOTP(r.Context(), identity, req.Code, deviceMeta(r)); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
