package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
	"github.com/xenking/kart-fulfillment/internal/handler"
	"github.com/xenking/kart-fulfillment/internal/notify"
	"github.com/xenking/kart-fulfillment/internal/repository"
	"github.com/xenking/kart-fulfillment/pkg/health"
	"github.com/xenking/kart-fulfillment/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. The product repository gets a Redis read cache in front
	// when an address is configured.
	memberRepo := repository.NewMemberRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	deliveryRepo := repository.NewDeliveryRepository(pool)

	var productRepo product.Repository = repository.NewProductRepository(pool)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		productRepo = repository.NewCachedProductRepository(productRepo, rdb, cfg.Redis.CacheTTL, lg)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Event publishing. Without brokers events are dropped.
	var (
		orderNotifier    order.Notifier    = notify.Nop{}
		deliveryNotifier delivery.Notifier = notify.Nop{}
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg)
		defer func() {
			if err := kafkaNotifier.Close(); err != nil {
				lg.Warn("Kafka writer close", zap.Error(err))
			}
		}()
		orderNotifier = kafkaNotifier
		deliveryNotifier = kafkaNotifier
	}

	// Domain services.
	productService := product.NewService(productRepo)
	cartService := cart.NewService(memberRepo, productRepo, cartRepo)
	orderService := order.NewService(memberRepo, productRepo, cartRepo, orderRepo, orderNotifier)
	deliveryService := delivery.NewService(deliveryRepo, memberRepo, deliveryNotifier, lg)

	// Scheduled delivery sweep runs in-process; disable it when a separate
	// scheduler triggers the sweep endpoint instead.
	if cfg.Sweep.Enabled {
		go runSweep(ctx, deliveryService, cfg.Sweep.Interval, lg)
	}

	// Mux: health endpoints + API routes on one server.
	h := handler.New(productService, cartService, orderService, deliveryService)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("fulfillment-api", m.TracerProvider(), m.MeterProvider()),
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

// runSweep periodically dispatches all deliveries that are due for shipping.
func runSweep(ctx context.Context, deliveries *delivery.Service, interval time.Duration, lg *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started, err := deliveries.RunScheduledSweep(ctx)
			if err != nil {
				lg.Error("Delivery sweep failed", zap.Error(err))
				continue
			}
			lg.Info("Delivery sweep complete", zap.Int("started", started))
		}
	}
}
