package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/zerowaste/internal/app"
	"github.com/joseph-ayodele/zerowaste/internal/async"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("app.build.failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = a.Store.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error("store.health.failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	logger.Info("store.health.ok", "driver", cfg.Store.Driver)

	queue := async.NewScanQueue(a.Households, logger,
		async.WithWorkers(cfg.Planner.ReceiptConcurrency),
		async.WithProcessTimeout(2*cfg.Planner.CallTimeout+cfg.Planner.RetryInitial),
	)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryLogging(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	server.Register(grpcServer, server.NewPlannerServer(a.Households, a.Planner, queue, a.Exporter, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc.listen.failed", "addr", cfg.Server.GRPCAddr, "err", err)
		os.Exit(1)
	}
	logger.Info("grpc.serving", "addr", lis.Addr().String(), "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "default_key", cfg.LLM.APIKey != "")

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc.serve.failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
