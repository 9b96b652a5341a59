package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/jcmexdev/storefront/internal/payment/gatewayrpc"
	"github.com/jcmexdev/storefront/internal/payment/sandbox"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
	"github.com/jcmexdev/storefront/internal/pkg/config"
	"github.com/jcmexdev/storefront/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, "payment-sandbox", cfg.OTLPEndpoint)
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

	lis, err := net.Listen("tcp", cfg.PaymentSandboxAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.PaymentSandboxAddr, "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.UnaryServerInterceptor()),
	)

	var spent cache.Cache
	if cfg.RedisAddr != "" {
		spent = cache.NewRedisCache(cfg.RedisAddr, "payment")
	}
	declineAbove, _ := cfg.DeclineAbove()
	gatewayrpc.RegisterServer(grpcServer, sandbox.NewServer(spent, declineAbove))

	go func() {
		<-ctx.Done()
		slog.Info("shutting down payment sandbox")
		grpcServer.GracefulStop()
	}()

	slog.Info("payment sandbox gRPC running", "addr", cfg.PaymentSandboxAddr, "decline_above", declineAbove.StringFixed(2))
	if err := grpcServer.Serve(lis); err != nil {
		slog.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}
