package paymentgateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/cache"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/config"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/ledger"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/metrics"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/migrations"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/rabbitmq"
	authservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/auth"
	gatewayservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/gateway"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/services/reconciler"
	subservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/subscription"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/services/verifier"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/storage"
)

// Тарифы, доступные для активации.
var availableTiers = []string{"basic", "pro", "enterprise"}

// App приложение платежного шлюза: HTTP-сервер и его зависимости.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
}

// New собирает приложение: хранилище с миграциями, кеш, брокер событий,
// клиент реестра и сервисы поверх них.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.RabbitConnectionString, 5, 3*time.Second)
	if err != nil {
		return nil, err
	}
	rabbitChannel, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.GetSubscriptionQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(rabbitChannel)

	metrics.InitMetrics()

	ledgerClient := ledger.NewClient(
		cfg.LedgerRPC.Endpoint,
		&http.Client{Timeout: cfg.LedgerRPC.RequestTimeout},
		rate.NewLimiter(rate.Limit(cfg.LedgerRPC.RateLimit), cfg.LedgerRPC.RateBurst),
	)

	verifierService := verifier.New(ledgerClient, cfg.LedgerRPC.TokenMint, cfg.LedgerRPC.ReceiverAddress, logger)
	reconcilerService := reconciler.New(ledgerClient, verifierService,
		cfg.Polling.Interval, cfg.Polling.Timeout, cfg.Polling.SignatureLimit, logger)
	subscriptionService := subservice.New(db, cacheRedis, availableTiers, logger)
	gatewayService := gatewayservice.New(db, verifierService, reconcilerService, subscriptionService, publisher, logger)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	authService := authservice.New(db, jwtMaker)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, authService, gatewayService, subscriptionService,
		func() error { return storage.CheckDatabaseReady(db) },
		rate.NewLimiter(1, 3),
	)

	srv := &http.Server{
		Addr:        cfg.AddressHTTP,
		Handler:     router,
		ReadTimeout: cfg.TimeoutHTTP,
		// Маршрут опроса держит соединение открытым на все окно сверки
		WriteTimeout: cfg.Polling.Timeout + cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		return err
	}
}
