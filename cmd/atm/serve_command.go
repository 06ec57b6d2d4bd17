package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"atm_bridge/internal/app/service"
	"atm_bridge/internal/infrastructure/configloader"
	"atm_bridge/internal/infrastructure/network/client"
	"atm_bridge/internal/infrastructure/network/contract"
	"atm_bridge/internal/infrastructure/restapi"
	"atm_bridge/internal/pkg/logger"
	"atm_bridge/internal/pkg/metrics"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Connect to the node and serve the ATM HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"ATM_CONFIG"},
				Value:   "config/config.yml",
			},
		},
		Action: func(c *cli.Context) error {
			return runServe(c.Context, c.String("config"))
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := configloader.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.InitZap(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()
	zapLogger.Info("Configuration loaded", zap.String("path", configPath), zap.String("network", cfg.Network.Name))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	parsedABI, err := contract.LoadABI(cfg.Contract.ABIFile)
	if err != nil {
		return err
	}

	detector := client.NewDetector(cfg, logger.Named("wallet"))
	defer detector.Close()

	binder := contract.NewBinder(
		common.HexToAddress(cfg.Contract.Address),
		parsedABI,
		clock.New(),
		time.Duration(cfg.Bridge.ReceiptPollMillis)*time.Millisecond,
	)
	bridge := service.NewBridge(detector, binder, logger.Named("bridge"), service.BridgeConfig{
		ConfirmationTimeout: time.Duration(cfg.Bridge.ConfirmationTimeoutSeconds) * time.Second,
		Metrics:             m,
	})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bridge.Mount(ctx); err != nil {
		zapLogger.Warn("Initial account discovery failed", zap.Error(err))
	}

	router := restapi.SetupRouter(restapi.NewATMHandler(bridge, logger.Named("http")), restapi.RouterOptions{
		Logger:   zapLogger,
		Gatherer: registry,
		Swagger:  cfg.Swagger,
		Pprof:    cfg.Server.EnablePprof,
	})

	srv := &http.Server{
		Addr:         listenAddr(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zapLogger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	if cfg.Bridge.AccountPollSeconds > 0 {
		interval := time.Duration(cfg.Bridge.AccountPollSeconds) * time.Second
		g.Go(func() error {
			zapLogger.Info("Watching wallet accounts", zap.Duration("interval", interval))
			if err := bridge.WatchAccounts(gctx, interval); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	zapLogger.Info("Server exiting")
	return nil
}

// listenAddr accepts either a bare port or a host:port pair.
func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
