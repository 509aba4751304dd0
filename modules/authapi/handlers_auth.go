package authapi

import (
	"net/http"

	"github.com/dmitrymomot/authd/svc/auth"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
	Kind        string `json:"kind"`
	Locale      string `json:"locale"`
	Currency    string `json:"currency"`
}

func (m *Module) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	identity, err := m.account.Register(r.Context(), auth.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Kind:        auth.Kind(req.Kind),
		Locale:      req.Locale,
		Currency:    req.Currency,
	})
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": identity.Profile()})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (m *Module) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	identity, err := m.account.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": identity.Profile()})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (m *Module) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.account.ResendVerification(r.Context(), req.Email); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	DeviceTrustToken string `json:"device_trust_token,omitempty"`
}

// loginResponse renders the three-way login outcome. The challenged and
// authenticated shapes share requires_mfa as the discriminator.
func loginResponse(result *auth.LoginResult) map[string]any {
	if result.RequiresMFA {
		return map[string]any{
			"requires_mfa":    true,
			"mfa_type":        result.MFAType,
			"challenge_token": result.ChallengeToken,
			"user":            result.User,
		}
	}

	resp := map[string]any{
		"requires_mfa":  false,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
		"token_type":    result.Tokens.TokenType,
		"expires_in":    result.Tokens.ExpiresIn,
		"user":          result.User,
	}
	if result.DeviceTrustToken != "" {
		resp["device_trust_token"] = result.DeviceTrustToken
	}
	return resp
}

func (m *Module) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	result, err := m.orchestrator.Login(r.Context(), req.Email, req.Password, req.DeviceTrustToken, deviceMeta(r))
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

type verifyMFARequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
}

func (m *Module) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	result, err := m.orchestrator.VerifyMFA(r.Context(), req.ChallengeToken, req.Code, req.RememberDevice, deviceMeta(r))
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (m *Module) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	pair, err := m.orchestrator.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (m *Module) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.orchestrator.Logout(r.Context(), req.RefreshToken); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

type federatedRequest struct {
	ProviderToken    string `json:"provider_token"`
	DeviceTrustToken string `json:"device_trust_token,omitempty"`
}

func (m *Module) federatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	result, err := m.orchestrator.FederatedLogin(r.Context(), req.ProviderToken, req.DeviceTrustToken, deviceMeta(r))
	if err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

func (m *Module) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.account.ForgotPassword(r.Context(), req.Email); err != nil {
		m.respondError(w, r, err)
		return
	}
	// Always positive so the endpoint cannot probe registrations.
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (m *Module) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}
	if err := m.account.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		m.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}
