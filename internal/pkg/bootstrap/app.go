// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"

	"arcadia/internal/pkg/logger"
	"arcadia/internal/pkg/nacos"
	"arcadia/internal/pkg/tracing"
	"arcadia/internal/pkg/utils"
)

var nacosConfigClient config_client.IConfigClient

// AppCtx 在注册路由时暴露给各服务的运行时句柄。
type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo 包含启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 每个服务在这里注册自己的 HTTP 路由
	// OnShutdown 在优雅关停时按注册顺序之后执行，用于关闭服务私有的资源
	// （数据库连接、Kafka writer 等）。
	OnShutdown func(ctx context.Context)
}

// StartService 封装了所有微服务的通用启动与优雅关停流程：
// 配置加载、追踪初始化、Nacos 注册、HTTP 服务、信号处理。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)

	// 1. 通用配置
	nacosServerAddrs := getEnv("NACOS_SERVER_ADDRS", "localhost:8848")
	nacosNamespace := os.Getenv("NACOS_NAMESPACE")
	nacosGroup := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

	// 2. 核心组件
	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	namingClient, err := nacos.NewClient(nacosServerAddrs, nacosNamespace, nacosGroup)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	// 3. 本机 IP，用于注册
	ip, err := utils.GetOutboundIP()
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	// 4. 服务注册
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to register service with nacos")
	}

	// 5. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Logger().Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger().Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger().Info().Msgf("shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 清理顺序：后进先出。
	// a. 先从 Nacos 摘除流量
	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger().Error().Err(err).Msg("error deregistering from nacos")
	}
	if nacosConfigClient != nil {
		nacosConfigClient.CloseClient()
	}

	// b. 关闭 HTTP 服务器，等在途请求处理完
	if err := server.Shutdown(ctx); err != nil {
		logger.Logger().Error().Err(err).Msg("error shutting down http server")
	}

	// c. 服务私有资源
	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	// d. 最后关 TracerProvider，把缓冲的 trace 刷出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger().Error().Err(err).Msg("error shutting down tracer provider")
	}

	logger.Logger().Info().Msgf("service %s gracefully shut down", info.ServiceName)
}

// getEnv 从环境变量读取配置，取不到时用默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
