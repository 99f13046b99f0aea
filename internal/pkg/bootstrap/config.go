// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"sync"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"gopkg.in/yaml.v3"

	"arcadia/internal/pkg/logger"
	"arcadia/internal/pkg/nacos"
)

// Config 是所有服务共享的配置树。
// 优先从 Nacos 配置中心拉取，拉不到就回退到本地 yaml 文件，再回退到默认值。
type Config struct {
	App struct {
		FeatureFlags struct {
			// EnableEligibilityRules 控制商城列表是否评估购买资格规则。
			EnableEligibilityRules bool `yaml:"enableEligibilityRules"`
		} `yaml:"featureFlags"`
	} `yaml:"app"`

	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
	} `yaml:"infra"`
}

var (
	currentConfig Config
	configOnce    sync.Once
)

func defaultConfig() Config {
	var cfg Config
	cfg.App.FeatureFlags.EnableEligibilityRules = true
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/arcadia?charset=utf8mb4&parseTime=True&loc=UTC")
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Infra.Kafka.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	return cfg
}

// Init 加载配置。必须在 StartService 之前调用一次。
func Init() {
	configOnce.Do(loadConfig)
}

// GetCurrentConfig 返回当前配置快照。
func GetCurrentConfig() Config {
	configOnce.Do(loadConfig)
	return currentConfig
}

func loadConfig() {
	currentConfig = defaultConfig()

	// 1. 本地 yaml 文件（CONFIG_FILE 指定，默认 config.yaml）
	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &currentConfig); err != nil {
			logger.Logger().Warn().Err(err).Str("path", path).Msg("failed to parse local config file, keeping defaults")
		} else {
			logger.Logger().Info().Str("path", path).Msg("config loaded from local file")
		}
	}

	// 2. Nacos 配置中心（配置了 NACOS_CONFIG_DATA_ID 才启用）
	dataId := os.Getenv("NACOS_CONFIG_DATA_ID")
	if dataId == "" {
		return
	}

	addrs := getEnv("NACOS_SERVER_ADDRS", "localhost:8848")
	namespace := os.Getenv("NACOS_NAMESPACE")
	group := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

	configClient, err := nacos.NewConfigClient(addrs, namespace)
	if err != nil {
		logger.Logger().Warn().Err(err).Msg("failed to create nacos config client, using local config")
		return
	}
	nacosConfigClient = configClient

	content, err := configClient.GetConfig(vo.ConfigParam{DataId: dataId, Group: group})
	if err != nil || content == "" {
		logger.Logger().Warn().Err(err).Msg("failed to fetch config from nacos, using local config")
		return
	}
	if err := yaml.Unmarshal([]byte(content), &currentConfig); err != nil {
		logger.Logger().Warn().Err(err).Msg("failed to parse nacos config, using local config")
		return
	}
	logger.Logger().Info().Str("data_id", dataId).Msg("config loaded from nacos config center")
}
