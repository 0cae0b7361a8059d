package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/Freeeeeet/studyroom/internal/app"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/billing"
	"github.com/Freeeeeet/studyroom/internal/config"
	"github.com/Freeeeeet/studyroom/internal/controller/api"
	"github.com/Freeeeeet/studyroom/internal/notify"
	"github.com/Freeeeeet/studyroom/internal/repository"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/Freeeeeet/studyroom/internal/storage/memory"
	"github.com/Freeeeeet/studyroom/migrations"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting study room server",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.String("addr", cfg.HTTPAddr),
	)

	fx.New(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			provideStore,
			provideIssuer,
			provideMailer,
			provideAlerter,
			provideGateway,
			provideServices,
			provideServer,
			provideScheduler,
		),
		fx.Invoke(runServer, runScheduler),
	).Run()
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	ctx := context.Background()
	store, err := repository.NewStore(ctx, cfg.DBDSN, cfg.StorageTimeout, logger)
	if err != nil {
		return nil, err
	}

	migrator, err := app.NewMigrator(store.Pool(), migrations.FS, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	defer migrator.Close()
	if err := migrator.Run(ctx); err != nil {
		store.Close()
		return nil, err
	}

	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func provideIssuer(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
}

func provideMailer(cfg *config.Config, logger *zap.Logger) service.OTPSender {
	return notify.NewMailer(cfg.MailjetPublicKey, cfg.MailjetPrivateKey, cfg.MailSender, logger)
}

func provideAlerter(cfg *config.Config, logger *zap.Logger) (service.Alerter, error) {
	if cfg.TelegramToken == "" {
		return notify.NewLogAlerter(logger), nil
	}
	alerter, err := notify.NewTelegramAlerter(cfg.TelegramToken, cfg.TelegramOpsChatID, logger)
	if err != nil {
		return nil, err
	}
	return alerter, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) billing.Gateway {
	return billing.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, cfg.BillingTimeout, logger)
}

func provideServices(
	cfg *config.Config,
	store storage.Store,
	tokens *auth.Issuer,
	mail service.OTPSender,
	alerts service.Alerter,
	gateway billing.Gateway,
	logger *zap.Logger,
) api.Services {
	return api.Services{
		Auth:     service.NewAuthService(store, tokens, mail, cfg.OTPTTL, alerts, logger),
		Shifts:   service.NewShiftService(store, alerts, logger),
		Seats:    service.NewSeatService(store, alerts, logger),
		Students: service.NewStudentService(store, alerts, logger),
		Billing:  service.NewBillingService(store, gateway, alerts, logger),
	}
}

func provideServer(cfg *config.Config, services api.Services, tokens *auth.Issuer, logger *zap.Logger) *api.Server {
	return api.NewServer(api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		ReadTimeout:    cfg.HTTPRead,
		WriteTimeout:   cfg.HTTPWrite,
		// один вызов провайдера плюс запросы к базе
		RequestTimeout: cfg.StorageTimeout + cfg.BillingTimeout,
	}, services, tokens, logger)
}

func provideScheduler(cfg *config.Config, services api.Services, logger *zap.Logger) (*app.Scheduler, error) {
	s, err := app.NewScheduler(cfg.CleanupSchedule, services.Billing, cfg.StorageTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", cfg.CleanupSchedule, err)
	}
	return s, nil
}

func runServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, server *api.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.Listen(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}

func runScheduler(lc fx.Lifecycle, s *app.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop(ctx)
			return nil
		},
	})
}
