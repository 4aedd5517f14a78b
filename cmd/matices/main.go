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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/matices-erp/matices-pos/internal/app"
	"github.com/matices-erp/matices-pos/internal/billing"
	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/integration"
	"github.com/matices-erp/matices-pos/internal/inventory"
	"github.com/matices-erp/matices-pos/internal/observability"
	"github.com/matices-erp/matices-pos/internal/platform/cache"
	"github.com/matices-erp/matices-pos/internal/platform/db"
	"github.com/matices-erp/matices-pos/internal/quotations"
	"github.com/matices-erp/matices-pos/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis is optional: without it product lookups go straight to
	// PostgreSQL.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	products := catalog.NewCachedProducts(catalogRepo, redisClient, logger, cfg.ProductCacheTTL)

	hooks := integration.NewHooks(logger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, products, catalogRepo.Suppliers(), catalogRepo.Branches(), auditLogger, hooks)

	quotationsRepo := quotations.NewRepository(pool)
	quotationsService := quotations.NewService(quotationsRepo, products)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, billing.Directories{
		Products:       products,
		PaymentMethods: catalogRepo.PaymentMethods(),
		Users:          catalogRepo.Users(),
		Walkins:        catalogRepo.Walkins(),
	}, cfg.InvoiceSeries, quotationsService, idempotencyStore, auditLogger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		BillingHandler:    billing.NewHandler(logger, billingService, metrics),
		QuotationsHandler: quotations.NewHandler(logger, quotationsService),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
