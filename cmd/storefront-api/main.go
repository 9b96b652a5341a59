package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jcmexdev/storefront/internal/api/httpx"
	"github.com/jcmexdev/storefront/internal/catalog"
	"github.com/jcmexdev/storefront/internal/checkout"
	journalsqlite "github.com/jcmexdev/storefront/internal/checkout/journal/sqlite"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/infra/events"
	"github.com/jcmexdev/storefront/internal/infra/gormstore"
	"github.com/jcmexdev/storefront/internal/infra/memstore"
	"github.com/jcmexdev/storefront/internal/infra/photostore"
	"github.com/jcmexdev/storefront/internal/inventory"
	"github.com/jcmexdev/storefront/internal/order"
	"github.com/jcmexdev/storefront/internal/payment/grpcgateway"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
	"github.com/jcmexdev/storefront/internal/pkg/config"
	"github.com/jcmexdev/storefront/internal/pkg/telemetry"
	"github.com/jcmexdev/storefront/internal/slug"
)

// store is everything the API needs from the catalog database.
type store interface {
	ports.CategoryRepository
	ports.ProductRepository
	ports.StockStore
	ports.OrderRepository
	ports.UserDirectory
	ports.SlugLookup
}

func main() {
	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.OTelServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("storefront api stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := os.MkdirAll(filepath.Dir(cfg.CheckoutLogPath), 0o755); err != nil {
		return fmt.Errorf("create checkout journal dir: %w", err)
	}
	checkoutLog, err := journalsqlite.Open(cfg.CheckoutLogPath)
	if err != nil {
		return err
	}
	defer checkoutLog.Close()

	gateway, conn, err := grpcgateway.Dial(cfg.PaymentGatewayAddr, cfg.PaymentTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	var idempotency cache.Cache
	if cfg.RedisAddr != "" {
		idempotency = cache.NewRedisCache(cfg.RedisAddr, "storefront")
	} else {
		slog.Warn("REDIS_ADDR not set; checkout idempotency keys are ignored")
	}

	var publisher ports.EventPublisher
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	} else {
		slog.Warn("KAFKA_BROKERS not set; domain events are not published")
	}

	if err := os.MkdirAll(cfg.PhotoDir, 0o755); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}
	photos := photostore.NewOS(cfg.PhotoDir)

	slugs := slug.NewAllocator(st, cfg.SlugMaxAttempts)
	categories := catalog.NewCategoryService(st, slugs)
	products := catalog.NewProductService(st, st, st, photos, slugs)
	orders := order.NewService(st, publisher)

	orchestrator := checkout.NewOrchestrator(checkout.Dependencies{
		Ledger:         inventory.NewLedger(st),
		Products:       st,
		Gateway:        gateway,
		Assembler:      order.NewAssembler(st),
		Orders:         st,
		Journal:        checkoutLog,
		Events:         publisher,
		Cache:          idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	handler := httpx.NewHandler(orchestrator, gateway, orders, categories, products)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler, st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("storefront api running", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down storefront api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		ms := memstore.New()
		if cfg.BootstrapAdminID != "" {
			ms.PutUser(domain.User{ID: cfg.BootstrapAdminID, Name: "admin", Role: domain.RoleAdmin})
		}
		slog.Warn("using in-memory store; data is lost on restart")
		return ms, func() {}, nil
	default:
		gs, err := gormstore.Open(cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if cfg.BootstrapAdminID != "" {
			err := gs.CreateUser(ctx, domain.User{ID: cfg.BootstrapAdminID, Name: "admin", Role: domain.RoleAdmin})
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				_ = gs.Close()
				return nil, nil, fmt.Errorf("bootstrap admin: %w", err)
			}
		}
		return gs, func() {
			if err := gs.Close(); err != nil {
				slog.Error("failed to close store", "error", err)
			}
		}, nil
	}
}
