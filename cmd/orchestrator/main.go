package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-fleet/internal/agentrpc"
	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/broadcast"
	"github.com/xela07ax/spaceai-fleet/internal/console/handler"
	"github.com/xela07ax/spaceai-fleet/internal/console/server"
	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra"
	"github.com/xela07ax/spaceai-fleet/internal/infra/auth"
	"github.com/xela07ax/spaceai-fleet/internal/repository/memory"
	"github.com/xela07ax/spaceai-fleet/internal/repository/postgres"
)

// store — все, что ядру нужно от хранилища. Реализуется postgres.Store и memory.Store.
type store interface {
	service.TokenRepository
	service.AgentRepository
	service.JobRepository
	service.UserRepository
	service.StatsRepository
	service.JournalReader
	audit.Storage
}

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("orchestrator failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст жизненного цикла фоновых горутин (свипер, relay)
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 2. Хранилище
	var repo store
	switch cfg.Database.Driver {
	case "postgres":
		ctx, cancelInit := context.WithTimeout(appCtx, 10*time.Second)
		pg, err := postgres.NewStore(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			cancelInit()
			return fmt.Errorf("database unreachable: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			cancelInit()
			return fmt.Errorf("migration failed: %w", err)
		}
		cancelInit()
		repo = pg
	default:
		logger.Warn("using in-memory storage, state is lost on restart")
		repo = memory.NewStore()
	}

	// 3. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 4. Broadcaster: локальный hub, поверх него Redis relay для нескольких инстансов
	hub := broadcast.NewHub(cfg.Events.ObserverBuffer, logger, func(topic string) {
		metrics.EventsDropped.WithLabelValues(topic).Inc()
	})
	var (
		pub    service.Publisher = hub
		locker engine.Locker
		// bg — свипер и relay; оба пишут в журнал и должны завершиться до него
		bg sync.WaitGroup
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		relay := broadcast.NewRedisRelay(rdb, hub, infra.RedisChanEvents, logger)
		bg.Add(1)
		go func() {
			defer bg.Done()
			relay.Run(appCtx)
		}()
		pub = relay
		locker = engine.NewRedisLock(rdb, uuid.NewString(), logger)
	}

	// 5. Журнал жизненного цикла
	journal := audit.NewJournal(repo, logger, audit.Options{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
		OnDrop:        metrics.JournalDropped.Inc,
	})
	journal.Start()
	defer drain(cancel, &bg, journal)

	// 6. Сервисы ядра
	privateKey, err := privateKeyFor(cfg, logger)
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}
	publicKey, err := publicKeyFor(cfg, privateKey)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}

	tokens := service.NewTokenService(repo, cfg.Tokens.DefaultTTL, metrics, logger)
	agents := service.NewAgentService(repo, repo, tokens, pub, journal, metrics, logger)
	jobs := service.NewJobService(repo, repo, pub, journal, metrics, logger)
	authSvc := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL, logger)
	if err := authSvc.EnsureAdmin(appCtx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Auth.BcryptCost); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	sweeper := service.NewPresenceSweeper(repo, repo, pub, journal, locker,
		cfg.Presence.LivenessTimeout, cfg.Presence.SweepInterval, metrics, logger)
	bg.Add(1)
	go func() {
		defer bg.Done()
		sweeper.Run(appCtx)
	}()

	// 7. HTTP API
	api := server.NewConsoleServer(logger, metrics, auth.NewBaseValidator(publicKey), server.Handlers{
		Auth:   handler.NewAuthHandler(authSvc, logger),
		Health: handler.NewHealthHandler(service.NewHealthService(repo), logger),
		Agents: handler.NewAgentHandler(agents, logger),
		Tokens: handler.NewTokenHandler(tokens, logger),
		Jobs:   handler.NewJobHandler(jobs, logger),
		Events: handler.NewEventHandler(hub, logger),
		Audit:  handler.NewAuditHandler(service.NewAuditService(repo), logger),
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("orchestrator API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics endpoint started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()

	// 8. gRPC транспорт агентов
	var grpcSrv interface{ GracefulStop() }
	if cfg.GRPC.Enabled {
		gs := agentrpc.NewGRPCServer(agentrpc.NewServer(agents, jobs), metrics, logger)
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		go func() {
			logger.Info("agent gRPC server started", zap.String("addr", lis.Addr().String()))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		grpcSrv = gs
	}

	// 9. Graceful Shutdown
	select {
	case <-appCtx.Done():
		logger.Info("orchestrator stopping...")
	case err := <-errCh:
		logger.Error("server failed, stopping", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("orchestrator exited properly")
	return nil
}

// drain гасит фоновые горутины и только после их выхода останавливает журнал.
func drain(cancel context.CancelFunc, bg *sync.WaitGroup, journal interface{ Stop() }) {
	cancel()
	bg.Wait()
	journal.Stop()
}

// privateKeyFor читает ключ подписи. Без ключа генерирует временный: токены
// операторов не переживут рестарт.
func privateKeyFor(cfg *infra.Config, logger *zap.Logger) (*rsa.PrivateKey, error) {
	if len(cfg.Auth.PrivateKey) > 0 {
		return auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	}
	logger.Warn("auth private key is not configured, generating an ephemeral one")
	return rsa.GenerateKey(rand.Reader, 2048)
}

// publicKeyFor берет публичный ключ из конфига, а при его отсутствии выводит из приватного.
func publicKeyFor(cfg *infra.Config, priv *rsa.PrivateKey) (*rsa.PublicKey, error) {
	if len(cfg.Auth.PublicKey) == 0 || len(cfg.Auth.PrivateKey) == 0 {
		return &priv.PublicKey, nil
	}
	return auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
}
