package authapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/validator"
	"github.com/dmitrymomot/authd/svc/auth"
)

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// statusCode maps a service sentinel to the HTTP status and stable error
// code the client sees. Unknown errors collapse to a blank 500.
func statusCode(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "duplicate_email"
	case errors.Is(err, auth.ErrAlreadyVerified):
		return http.StatusConflict, "already_verified"
	case errors.Is(err, auth.ErrTOTPAlreadyEnabled):
		return http.StatusConflict, "already_enabled"
	case errors.Is(err, auth.ErrMFANotEnabled):
		return http.StatusBadRequest, "not_enabled"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrInvalidRefresh):
		return http.StatusUnauthorized, "invalid_refresh"
	case errors.Is(err, auth.ErrInvalidMFA):
		return http.StatusUnauthorized, "invalid_mfa"
	case errors.Is(err, auth.ErrChallengeExpired):
		return http.StatusUnauthorized, "challenge_expired"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, auth.ErrAssertionInvalid):
		return http.StatusUnauthorized, "assertion_invalid"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, "account_inactive"
	case errors.Is(err, auth.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, auth.ErrIdentityNotFound), errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (m *Module) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusCode(err)
	body := errorBody{Code: code, Message: err.Error()}

	if status == http.StatusInternalServerError {
		m.log.ErrorContext(r.Context(), "request failed",
			logger.Error(err),
			slog.String("path", r.URL.Path),
		)
		// Internal detail stays in the log.
		body.Message = "internal server error"
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = make(map[string][]string, len(verrs.Fields()))
		for _, field := range verrs.Fields() {
			body.Fields[field] = verrs.Get(field)
		}
	}

	writeJSON(w, status, errorEnvelope{Error: body})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(auth.ErrInvalidInput, errors.New("malformed json body"))
	}
	return nil
}
