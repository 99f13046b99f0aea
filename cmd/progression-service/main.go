// cmd/progression-service/main.go
package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"arcadia/internal/pkg/bootstrap"
	"arcadia/internal/pkg/logger"
	"arcadia/internal/pkg/mq"
	"arcadia/internal/pkg/redis"
	"arcadia/internal/service/progression/application"
	"arcadia/internal/service/progression/domain"
	"arcadia/internal/service/progression/domain/port"
	"arcadia/internal/service/progression/infrastructure"
	"arcadia/internal/service/progression/infrastructure/adapter"
	"arcadia/internal/service/progression/infrastructure/rule"
	"arcadia/internal/service/progression/interfaces"
)

const (
	serviceName = "progression-service"
	servicePort = 8086
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	// 1. 权威存储：MySQL
	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to migrate schema")
	}

	// 2. 降级存储：Redis 临时副本
	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to redis")
	}

	progressionRepo := adapter.NewFallbackProgressionRepository(
		infrastructure.NewGormProgressionRepository(db),
		adapter.NewTransientRedisRepository(redisClient),
	)
	couponRepo := infrastructure.NewGormCouponRepository(db)

	// 3. 事件总线
	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, adapter.EventsTopic)
	publisher := adapter.NewNotifierKafkaAdapter(kafkaWriter)

	// 4. 资格规则引擎（可以用 feature flag 整体关掉）
	var ruleEngine domain.RuleEngine
	if cfg.App.FeatureFlags.EnableEligibilityRules {
		engine, err := rule.NewCELRuleEngineAdapter()
		if err != nil {
			logger.Logger().Fatal().Err(err).Msg("failed to initialize rule engine")
		}
		ruleEngine = engine
	}

	service := application.NewProgressionService(
		progressionRepo,
		couponRepo,
		domain.DefaultCatalog,
		ruleEngine,
		publisher,
		port.SystemClock{},
		otel.Tracer(serviceName),
	)
	handler := interfaces.NewProgressionHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
		},
		OnShutdown: func(ctx context.Context) {
			if err := kafkaWriter.Close(); err != nil {
				logger.Logger().Error().Err(err).Msg("error closing kafka writer")
			}
			if err := redisClient.Close(); err != nil {
				logger.Logger().Error().Err(err).Msg("error closing redis client")
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		},
	})
}
