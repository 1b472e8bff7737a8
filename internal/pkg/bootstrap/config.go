// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的全部配置，来自 YAML 文件并可被环境变量覆盖
type Config struct {
	App      AppConfig      `yaml:"app"`
	Log      LogConfig      `yaml:"log"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Locker   LockerConfig   `yaml:"locker"`
	Infra    InfraConfig    `yaml:"infra"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type CheckoutConfig struct {
	// OverflowDecline: cap | abandon | proceed
	OverflowDecline string `yaml:"overflowDecline"`
}

type CatalogConfig struct {
	// Source: file | mysql
	Source         string `yaml:"source"`
	ProductsPath   string `yaml:"productsPath"`
	PromotionsPath string `yaml:"promotionsPath"`
	DSN            string `yaml:"dsn"`
}

type LockerConfig struct {
	// Kind: memory | redis | zookeeper
	Kind string `yaml:"kind"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
}

// DefaultConfig 在没有配置文件时使用
func DefaultConfig() *Config {
	cfg := &Config{
		App:      AppConfig{Name: "checkout-service", Port: 8080},
		Log:      LogConfig{Level: "info"},
		Checkout: CheckoutConfig{OverflowDecline: "cap"},
		Catalog: CatalogConfig{
			Source:         "file",
			ProductsPath:   "data/products.md",
			PromotionsPath: "data/promotions.md",
		},
		Locker: LockerConfig{Kind: "memory"},
	}
	cfg.Infra.Kafka.Topic = "checkout-receipts"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置，未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// Init 从 CONFIG_PATH（默认 configs/config.yaml）加载配置并设为当前配置。
// 文件不存在时使用默认值，仍然应用环境变量覆盖。
func Init() (*Config, error) {
	cfg, err := Load(getEnv("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// Load 读取指定路径的配置文件
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	if port := getEnv("APP_PORT", ""); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return errors.Wrapf(err, "invalid APP_PORT %q", port)
		}
		cfg.App.Port = p
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if pretty := getEnv("LOG_PRETTY", ""); pretty != "" {
		b, err := strconv.ParseBool(pretty)
		if err != nil {
			return errors.Wrapf(err, "invalid LOG_PRETTY %q", pretty)
		}
		cfg.Log.Pretty = b
	}

	cfg.Checkout.OverflowDecline = getEnv("CHECKOUT_OVERFLOW_DECLINE", cfg.Checkout.OverflowDecline)
	cfg.Catalog.Source = getEnv("CATALOG_SOURCE", cfg.Catalog.Source)
	cfg.Catalog.ProductsPath = getEnv("CATALOG_PRODUCTS_PATH", cfg.Catalog.ProductsPath)
	cfg.Catalog.PromotionsPath = getEnv("CATALOG_PROMOTIONS_PATH", cfg.Catalog.PromotionsPath)
	cfg.Catalog.DSN = getEnv("CATALOG_DSN", cfg.Catalog.DSN)
	cfg.Locker.Kind = getEnv("LOCKER_KIND", cfg.Locker.Kind)

	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	if servers := getEnv("ZOOKEEPER_SERVERS", ""); servers != "" {
		cfg.Infra.Zookeeper.Servers = splitList(servers)
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = splitList(brokers)
	}
	cfg.Infra.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Infra.Kafka.Topic)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
