package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity/internal/config"
	"identity/internal/geo"
	"identity/internal/jwtsigner"
	"identity/internal/notify"
	"identity/internal/observability/logging"
	"identity/internal/observability/metrics"
	"identity/internal/ratelimit"
	"identity/internal/security"
	impl "identity/internal/service/impl"
	"identity/internal/store"
	transport "identity/internal/transport/http"
	"identity/pkg/db"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const serviceName = "identity"

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("identity service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer, serviceName)

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL, MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxIdle: 5 * time.Minute})
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := store.Migrate(ctx, sqlDB); err != nil {
		return err
	}
	st := store.New(gdb)

	// 2) Collaborators
	cipher, err := security.NewCipher(cfg.TwoFactorEncryptionKey)
	if err != nil {
		return err
	}
	signer, err := jwtsigner.NewFromBase64(cfg.SigningKey, cfg.SigningKeyID, cfg.Issuer, cfg.Audience)
	if err != nil {
		return err
	}
	if cfg.SigningKey == "" {
		logger.Warn("SIGNING_KEY not set, using an ephemeral key")
	}

	var mailer notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.SMTP.Host != "" {
		smtp, err := notify.NewSMTPNotifier(notify.SMTPConfig(cfg.SMTP))
		if err != nil {
			return err
		}
		mailer = smtp
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{BufferSize: cfg.NotifyBufferSize, DropIfFull: true}, mailer)
	defer dispatcher.Close()

	var locator geo.Geolocator = geo.None{}
	if cfg.GeoIPDBPath != "" {
		mm := geo.NewMaxMind(cfg.GeoIPDBPath)
		defer mm.Close()
		locator = mm
	}

	deps := impl.Deps{
		Store:    st,
		Hasher:   security.NewBcryptHasher(cfg.BcryptCost),
		Cipher:   cipher,
		TOTP:     security.NewTOTP(cfg.TOTPIssuer),
		Notifier: dispatcher,
		Geo:      locator,
		Policy: impl.Policy{
			VerifyTTL:        cfg.VerifyTTL,
			RefreshTTL:       cfg.RefreshTTL,
			EmailChangeTTL:   cfg.EmailChangeTTL,
			TwoFactorOTPTTL:  cfg.TwoFactorOTPTTL,
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			LockWindow:       cfg.LockWindow,
		},
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		deps.Limiter = ratelimit.New(rdb, ratelimit.Config{MaxFailures: cfg.LoginIPMaxFails, Window: cfg.LoginIPWindow})
	}

	// 3) Services + HTTP
	h := &transport.Handler{
		Auth:      impl.NewAuthServiceImpl(deps),
		Sessions:  impl.NewSessionServiceImpl(deps),
		TwoFactor: impl.NewTwoFactorServiceImpl(deps),
		Account:   impl.NewAccountServiceImpl(deps),
		Signer:    signer,
		AccessTTL: cfg.AccessTTL,
	}
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: transport.NewRouter(h, transport.RouterConfig{
			CORSOrigins:        cfg.CORSOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			TrustProxy:         cfg.TrustProxy,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runJanitor(ctx, st, cfg.TokenJanitorInterval, cfg.EmailChangeTTL, time.Now)

	errc := make(chan error, 1)
	go func() {
		logger.Info("identity service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
