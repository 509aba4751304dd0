package authapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/authd/pkg/clientip"
	"github.com/dmitrymomot/authd/svc/auth"
)

// Module bundles the HTTP surface of the auth service.
type Module struct {
	orchestrator *auth.Orchestrator
	account      *auth.AccountService
	mfa          *auth.MFAEngine
	tokens       *auth.TokenService
	log          *slog.Logger
}

// NewModule wires the module. All dependencies are required.
func NewModule(orchestrator *auth.Orchestrator, account *auth.AccountService, mfa *auth.MFAEngine, tokens *auth.TokenService, log *slog.Logger) *Module {
	if log == nil {
		log = slog.Default()
	}
	return &Module{
		orchestrator: orchestrator,
		account:      account,
		mfa:          mfa,
		tokens:       tokens,
		log:          log,
	}
}

// Handle mounts every route and returns the router.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", m.register)
		r.Post("/verify-email", m.verifyEmail)
		r.Post("/resend-verification", m.resendVerification)
		r.Post("/login", m.login)
		r.Post("/login/mfa", m.verifyMFA)
		r.Post("/refresh", m.refresh)
		r.Post("/logout", m.logout)
		r.Post("/federated", m.federatedLogin)
		r.Post("/forgot-password", m.forgotPassword)
		r.Post("/reset-password", m.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(m.requireAuth)

		r.Route("/mfa", func(r chi.Router) {
			r.Get("/status", m.mfaStatus)
			r.Post("/totp/setup", m.totpSetup)
			r.Post("/totp/activate", m.totpActivate)
			r.Post("/totp/disable", m.totpDisable)
			r.Post("/backup-codes", m.regenerateBackupCodes)
			r.Post("/backup/verify", m.verifyBackupCode)
			r.Post("/email/enable", m.enableEmailMFA)
			r.Post("/email/disable", m.disableEmailMFA)
			r.Post("/email/send", m.sendEmailOTP)
			r.Post("/email/verify", m.verifyEmailOTP)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", m.getProfile)
			r.Put("/", m.updateProfile)
			r.Delete("/", m.deleteAccount)
			r.Put("/password", m.changePassword)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", m.listSessions)
			r.Delete("/{sessionID}", m.revokeSession)
		})
	})

	return r
}

// deviceMeta captures the client context recorded on sessions and MFA
// attempt rows.
func deviceMeta(r *http.Request) auth.DeviceMeta {
	return auth.DeviceMeta{
		IP:        clientip.GetIP(r),
		UserAgent: r.UserAgent(),
	}
}
