package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"residence-data/common/database"
	"residence-data/common/logger"
	commonmqtt "residence-data/common/mqtt"
	commonredis "residence-data/common/redis"
	"residence-data/internal/config"
	httpapi "residence-data/internal/http"
	"residence-data/internal/repository"
	"residence-data/internal/service"
	"residence-data/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// repositories 按存储后端组装
type repositories struct {
	housing  repository.HousingRepository
	occ      repository.OccupancyRepository
	students service.StudentDirectory
	local    service.StudentStore
	uow      repository.UnitOfWork
	tenants  repository.TenantResolver
}

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "residence-data")
	defer log.Sync()

	// Postgres 可选：不可用时回退到内存仓库
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(context.Background(), &cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for residence-data", zap.String("database", cfg.Database.Database))
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}

	var repos repositories
	if db != nil {
		students := repository.NewPostgresStudentsRepository(db)
		repos = repositories{
			housing:  repository.NewPostgresHousingRepository(db),
			occ:      repository.NewPostgresOccupancyRepository(db),
			students: students,
			local:    students,
			uow:      repository.NewPostgresUnitOfWork(db),
			tenants:  repository.NewPostgresTenantResolver(db),
		}
	} else {
		mem := repository.NewMemoryStore()
		repos = repositories{housing: mem, occ: mem, students: mem, local: mem, uow: mem, tenants: mem}
	}
	if cfg.StudentDirectoryURL != "" {
		remote := service.NewHTTPStudentDirectory(cfg.StudentDirectoryURL, 3*time.Second, log)
		repos.students = service.NewSyncedStudentDirectory(remote, repos.local, log)
		log.Info("using external student directory", zap.String("url", cfg.StudentDirectoryURL))
	}

	// Redis：统计缓存 + 审计 stream
	var (
		redisClient *redis.Client
		kv          store.KV
	)
	audit := service.MultiAuditSink{service.NewLogAuditSink(log)}
	if cfg.RedisEnabled {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if c, err := commonredis.Connect(pingCtx, &cfg.Redis); err == nil {
			redisClient = c
			kv = store.NewRedisKV(c)
			audit = append(audit, service.NewRedisStreamAuditSink(c, cfg.Audit.Stream))
		} else {
			log.Warn("redis unreachable, statistics cache and audit stream disabled", zap.Error(err))
		}
		cancel()
	}

	// MQTT：床位状态通知（可选）
	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled {
		if c, err := commonmqtt.NewClient(&cfg.MQTT.MQTTConfig, log); err == nil {
			mqttClient = c
			audit = append(audit, service.NewMQTTAuditSink(c, cfg.MQTT.TopicPrefix))
		} else {
			log.Warn("mqtt connect failed, notifications disabled", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "residence"))
	}
	metrics := service.NewMetrics(reg)

	runner := service.NewTxRunner(repos.uow, service.TxPolicy{
		MaxRetries: cfg.Allocation.MaxRetries,
		Timeout:    cfg.Allocation.TxTimeout,
		Backoff:    20 * time.Millisecond,
	}, metrics, log)
	stats := service.NewStatisticsService(repos.occ, kv, cfg.Stats.CacheTTL, log)
	hooks := service.CommitHooks{Audit: audit, Stats: stats, Logger: log}

	ledger := service.NewOccupancyLedger(repos.occ, repos.students, runner, hooks, cfg.Allocation.ExpiringDefaultDays, log)
	engine := service.NewAllocationEngine(ledger, runner, hooks, log)
	beds := service.NewBedRegistry(repos.housing, runner, hooks, log)
	housings := service.NewHousingService(repos.housing, runner, hooks, log)

	tenants := httpapi.NewTenantContext(repos.tenants)
	router := httpapi.NewRouter(log)
	router.RegisterHousingRoutes(httpapi.NewHousingHandler(housings, beds, tenants, log))
	router.RegisterOccupancyRoutes(httpapi.NewOccupancyHandler(engine, ledger, stats, tenants, log))
	router.RegisterOpsRoutes(reg)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttClient != nil {
		mqttClient.Close()
	}
	if redisClient != nil {
		_ = commonredis.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}
}
