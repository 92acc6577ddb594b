package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
	"github.com/xenking/checkout-engine/internal/event"
	"github.com/xenking/checkout-engine/internal/gateway/midtrans"
	"github.com/xenking/checkout-engine/internal/gateway/sandbox"
	"github.com/xenking/checkout-engine/internal/handler"
	"github.com/xenking/checkout-engine/internal/repository"
	"github.com/xenking/checkout-engine/pkg/health"
	"github.com/xenking/checkout-engine/pkg/httpmiddleware"
	"github.com/xenking/checkout-engine/pkg/lock"
)

// orderLockTTL bounds how long one webhook or sweep pass may hold an order
// lock before it is considered abandoned.
const orderLockTTL = 30 * time.Second

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shippingCost, err := decimal.NewFromString(cfg.ShippingCost)
	if err != nil {
		return errors.Wrapf(err, "parse shipping cost %q", cfg.ShippingCost)
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Order locks: Redis when configured, in-process otherwise.
	var locker lock.Locker
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient, "checkout", orderLockTTL)
	} else {
		locker = lock.NewMemory()
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabaseCheck(pool))
	if redisClient != nil {
		healthSvc.AddReadinessCheck("redis", 5*time.Second, health.RedisCheck(redisClient))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Event publishing.
	var events event.Publisher = event.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafka.Close()
		events = kafka
	}

	// Payment gateway.
	gw, err := buildGateway(cfg.Payment)
	if err != nil {
		return errors.Wrap(err, "build payment gateway")
	}

	// Stores and repositories.
	checkoutStore := repository.NewCheckoutStore(pool)
	reconcileStore := repository.NewReconcileStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	checkout := order.NewCheckout(checkoutStore, events, order.CheckoutConfig{
		ShippingCost: shippingCost,
	})
	paymentSvc := payment.NewService(paymentRepo, gw, payment.ServiceConfig{
		SessionExpiry: cfg.Payment.SessionExpiry,
	})
	reconciler := payment.NewReconciler(reconcileStore, []payment.Gateway{gw}, locker, events)

	// HTTP handlers.
	h := handler.NewHandler(checkout, orderRepo, paymentSvc, reconciler)
	apiAuth := handler.NewAPIKeyAuth(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, apiAuth.Middleware)

	instrumented := otelhttp.NewHandler(mux, "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// buildGateway constructs the configured payment gateway.
func buildGateway(cfg PaymentConfig) (payment.Gateway, error) {
	switch cfg.Provider {
	case "midtrans":
		return midtrans.New(midtrans.Config{
			ServerKey: cfg.MidtransServerKey,
			BaseURL:   cfg.MidtransBaseURL + "/snap/v1",
			Timeout:   cfg.GatewayTimeout,
		}), nil
	case "sandbox":
		return sandbox.New(cfg.SandboxSecret, cfg.SandboxRedirect), nil
	default:
		return nil, errors.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
