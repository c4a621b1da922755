package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cellwars/cellwars-server/internal/config"
	"github.com/cellwars/cellwars-server/internal/match"
	"github.com/cellwars/cellwars-server/internal/repository"
	"github.com/cellwars/cellwars-server/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting cellwars server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("cellwars server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open closure store: %w", err)
	}
	defer store.Close()

	hub := server.NewHub(logger)
	manager := match.NewManager(logger, match.SettingsFromConfig(cfg), store, hub, match.ManagerOptions{
		MaxMatches: cfg.Server.MaxMatches,
		ReplayDir:  cfg.Storage.ReplayDir,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           server.New(cfg.Server.WebSocket, manager, hub, store, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer, health := server.NewGRPCServer(logger)

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPC.Address, err)
	}
	wsLis, err := net.Listen("tcp", cfg.Server.WebSocket.Address)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("listen %s: %w", cfg.Server.WebSocket.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		return grpcServer.Serve(grpcLis)
	})

	g.Go(func() error {
		logger.Info("starting WebSocket server", zap.String("address", cfg.Server.WebSocket.Address))
		if err := httpServer.Serve(wsLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("WebSocket server shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	health.SetServingStatus(server.MatchService, healthpb.HealthCheckResponse_SERVING)
	logger.Info("cellwars server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.Int("max_matches", cfg.Server.MaxMatches),
	)

	return g.Wait()
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
