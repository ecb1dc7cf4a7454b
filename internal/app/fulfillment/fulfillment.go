package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/curadoria-elite-travel/fulfillment/internal/cache"
	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/health"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/jwt"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/rabbitmq"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/metrics"
	"github.com/curadoria-elite-travel/fulfillment/internal/migrations"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	fulfillmentservice "github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/gate"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/granter"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/resolver"
	"github.com/curadoria-elite-travel/fulfillment/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	mqConn *amqp.Connection
	mqCh   *amqp.Channel
}

// New поднимает хранилище и необязательные Redis и RabbitMQ, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.fulfillment.New"

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, db: db}
	checks := map[string]health.Pinger{"storage": db}

	var candidateCache resolver.Cache
	if cfg.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		candidateCache = app.cache
		checks["cache"] = app.cache
	} else {
		logger.Info("redis is not configured, candidate cache disabled")
	}

	var publisher granter.Publisher
	if cfg.RabbitMQURL != "" {
		app.mqConn, err = rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.mqCh, err = rabbitmq.SetupChannel(app.mqConn, cfg.GrantExchange, rabbitmq.GrantQueues(cfg.GrantRoutingKey))
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher = rabbitmq.NewGrantPublisher(app.mqCh, cfg.GrantExchange, cfg.GrantRoutingKey)
	} else {
		logger.Info("rabbitmq is not configured, grant events disabled")
	}

	m := metrics.New()

	res := resolver.New(db, candidateCache, logger, resolver.Options{
		ExactLimit:    cfg.ExactLimit,
		FallbackLimit: cfg.FallbackLimit,
		ScanLimit:     cfg.ScanLimit,
		CacheTTL:      cfg.CacheTTL,
	})
	gr := granter.New(res, db, publisher, m, logger)
	verifier := jwt.NewVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience)
	g := gate.New(verifier, db, m, logger)

	providers := paymentprovider.NewRegistry(cfg.DefaultProvider,
		paymentprovider.NewStripe(cfg.Stripe, cfg.Checkout, logger, m),
		paymentprovider.NewMercadoPago(cfg.MercadoPago, cfg.Checkout, cfg.Env, logger, m),
	)
	service := fulfillmentservice.New(providers, g, gr, db, m, cfg.Source, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Deps{
		Service:    service,
		Identifier: g,
		Health:     checks,
		Metrics:    m.Handler(),
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
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
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.mqCh != nil {
		if err := a.mqCh.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.mqConn != nil {
		if err := a.mqConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close storage", sl.Err(err))
	}
}
