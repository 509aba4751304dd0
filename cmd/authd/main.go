package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/authd/migrations"
	"github.com/dmitrymomot/authd/modules/authapi"
	"github.com/dmitrymomot/authd/pkg/clientip"
	"github.com/dmitrymomot/authd/pkg/config"
	"github.com/dmitrymomot/authd/pkg/httpserver"
	"github.com/dmitrymomot/authd/pkg/idp"
	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/mailer"
	"github.com/dmitrymomot/authd/pkg/pg"
	"github.com/dmitrymomot/authd/pkg/ratelimit"
	"github.com/dmitrymomot/authd/pkg/requestid"
	"github.com/dmitrymomot/authd/pkg/secrets"
	"github.com/dmitrymomot/authd/svc/auth"
)

type appConfig struct {
	AppName     string `env:"APP_NAME" envDefault:"authd"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	// BaseURL is the public web origin used in verification and reset
	// links.
	BaseURL string `env:"BASE_URL,required"`

	JWTSigningKey string        `env:"JWT_SIGNING_KEY,required"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshDays   int           `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
	TrustDays     int           `env:"DEVICE_TRUST_TTL_DAYS" envDefault:"7"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"authd"`

	// Per-IP sliding window over all endpoints. Login throttling beyond
	// this is handled by the account lockout counter.
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// DevMailer routes outbound mail to local files instead of Postmark.
	DevMailer bool `env:"MAILER_DEV" envDefault:"false"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, cfg.AppName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return fmt.Errorf("load pg config: %w", err)
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
		return err
	}

	var secretsCfg secrets.Config
	if err := config.Load(&secretsCfg); err != nil {
		return fmt.Errorf("load secrets config: %w", err)
	}
	cipher, err := secrets.NewFromConfig(secretsCfg)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	var mailerCfg mailer.Config
	if err := config.Load(&mailerCfg); err != nil {
		return fmt.Errorf("load mailer config: %w", err)
	}
	var sender mailer.Mailer
	if cfg.DevMailer {
		sender = mailer.NewDevSender(mailerCfg.DevDir)
		log.Info("mailer running in dev mode", "dir", mailerCfg.DevDir)
	} else {
		sender, err = mailer.NewPostmarkClient(mailerCfg)
		if err != nil {
			return fmt.Errorf("init mailer: %w", err)
		}
	}

	var idpCfg idp.Config
	if err := config.Load(&idpCfg); err != nil {
		return fmt.Errorf("load idp config: %w", err)
	}
	verifier := idp.Disabled()
	if idpCfg.Enabled() {
		if idpCfg.RedirectURL != "" {
			verifier, err = idp.NewOIDCCodeVerifier(ctx, idpCfg)
		} else {
			verifier, err = idp.NewOIDCVerifier(ctx, idpCfg)
		}
		if err != nil {
			return fmt.Errorf("init idp verifier: %w", err)
		}
		log.Info("federated login enabled", "issuer", idpCfg.Issuer)
	}

	store, err := auth.NewPostgresStore(pool)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(store, []byte(cfg.JWTSigningKey),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(time.Duration(cfg.RefreshDays)*24*time.Hour),
		auth.WithDeviceTrustTTL(time.Duration(cfg.TrustDays)*24*time.Hour),
	)
	if err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(store,
		auth.WithLockoutThreshold(cfg.LockoutThreshold),
		auth.WithLockoutDuration(cfg.LockoutDuration),
	)
	if err != nil {
		return err
	}

	mfa, err := auth.NewMFAEngine(store, cipher, sender, cfg.TOTPIssuer, cfg.AppName,
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithMFALogger(log),
	)
	if err != nil {
		return err
	}

	federated, err := auth.NewFederatedAdapter(store, verifier)
	if err != nil {
		return err
	}

	orchestrator, err := auth.NewOrchestrator(store, authenticator, mfa, tokens, federated,
		auth.WithOrchestratorLogger(log),
	)
	if err != nil {
		return err
	}

	account, err := auth.NewAccountService(store, sender, cfg.AppName, cfg.BaseURL,
		auth.WithAccountBcryptCost(cfg.BcryptCost),
		auth.WithAccountLogger(log),
	)
	if err != nil {
		return err
	}

	module := authapi.NewModule(orchestrator, account, mfa, tokens, log)

	limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), cfg.RateLimit, cfg.RateLimitWindow)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(ratelimit.Middleware(limiter, func(req *http.Request) string {
		return clientip.GetIP(req)
	}))
	r.Get("/healthz", healthz(pg.Healthcheck(pool)))
	r.Mount("/", module.Handle())

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.Info("starting server", "addr", httpCfg.Addr)
	return srv.Run(ctx, r)
}

func healthz(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
