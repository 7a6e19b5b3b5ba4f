package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/spaceai-fleet/internal/agent"
	"github.com/xela07ax/spaceai-fleet/internal/agentrpc"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra"
)

func main() {
	cfg, err := infra.LoadAgentConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Транспорт до оркестратора
	var orch agent.Orchestrator
	switch cfg.Transport {
	case "grpc":
		conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to connect to orchestrator", zap.Error(err))
		}
		defer conn.Close()
		orch = agentrpc.NewClient(conn, cfg.RequestTimeout)
	default:
		orch = agent.NewHTTPClient(cfg.ServerURL, &http.Client{Timeout: cfg.RequestTimeout})
	}

	// 2. Метрики агента: состояние предохранителя видно на его собственном /metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)
	if cfg.MetricsPort > 0 {
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics endpoint started", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// 3. Надежность: лимитер, предохранитель, повторы
	safe := agent.NewReliableOrchestrator(orch, agent.ReliabilityOptions{
		Attempts:       cfg.RetryAttempts,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		CBFailures:     cfg.CBFailures,
		CBTimeout:      cfg.CBTimeout,
	}, metrics, logger)

	// 4. Основной цикл
	a := agent.New(safe, agent.NewRunner(cfg.CommandTimeout, logger), agent.Config{
		Hostname:          cfg.Hostname,
		Token:             cfg.Token,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.PollInterval,
	}, logger)

	logger.Info("agent starting", zap.String("transport", cfg.Transport))
	if err := a.Run(ctx); err != nil {
		logger.Fatal("agent stopped", zap.Error(err))
	}
	logger.Info("agent exited properly")
}
