// Package checkout 按配置组装结账服务的全部依赖，供 HTTP 服务和终端程序共用。
package checkout

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"convenience/internal/pkg/bootstrap"
	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/infrastructure"
	"convenience/internal/service/checkout/infrastructure/adapter"
	"convenience/internal/service/checkout/infrastructure/rule"
	"convenience/internal/service/checkout/port"
	"convenience/internal/zookeeper"
)

const (
	redisLockTTL     = 5 * time.Second
	zookeeperTimeout = 5 * time.Second
)

// Components 是组装好的服务及其需要在退出时关闭的资源
type Components struct {
	Service *application.CheckoutService
	Repo    *infrastructure.MemoryProductRepository

	closers []func() error
}

// Close 按创建的相反顺序释放资源
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Error().Err(err).Msg("error closing checkout component")
		}
	}
	c.closers = nil
}

// Build 加载商品目录并按配置选择规则引擎、锁、指标和收据发布方式。
// reg 为 nil 时不注册指标。
func Build(ctx context.Context, cfg *bootstrap.Config, reg prometheus.Registerer) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	policy, err := application.ParseOverflowDeclinePolicy(cfg.Checkout.OverflowDecline)
	if err != nil {
		return nil, err
	}

	products, err := c.loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}

	rules, err := rule.NewCELRuleEngine()
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.Promotion == nil || p.Promotion.Condition == "" {
			continue
		}
		if err := rules.Compile(p.Promotion.Condition); err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "promotion %q condition: %v", p.Promotion.Type, err)
		}
	}
	c.Repo = infrastructure.NewMemoryProductRepository(products)

	locker, err := c.newLocker(cfg)
	if err != nil {
		return nil, err
	}

	opts := []application.Option{
		application.WithRuleEngine(rules),
		application.WithLocker(locker),
		application.WithOverflowDeclinePolicy(policy),
	}
	if reg != nil {
		opts = append(opts, application.WithRecorder(infrastructure.NewPrometheusRecorder(reg)))
	}
	engine := application.NewAllocationEngine(c.Repo, opts...)

	c.Service = application.NewCheckoutService(engine, c.Repo, c.newPublisher(cfg), otel.Tracer("checkout"))

	log.Info().
		Int("products", len(products)).
		Str("catalog", cfg.Catalog.Source).
		Str("locker", cfg.Locker.Kind).
		Str("overflow_decline", string(policy)).
		Msg("checkout components ready")
	ok = true
	return c, nil
}

func (c *Components) loadCatalog(ctx context.Context, cfg bootstrap.CatalogConfig) ([]*domain.Product, error) {
	var source infrastructure.CatalogSource
	switch cfg.Source {
	case "", "file":
		source = infrastructure.NewFileCatalogSource(cfg.ProductsPath, cfg.PromotionsPath)
	case "mysql":
		gormSource, err := infrastructure.NewMySQLCatalogSource(cfg.DSN)
		if err != nil {
			return nil, err
		}
		source = gormSource
	default:
		return nil, errors.Errorf("unknown catalog source %q", cfg.Source)
	}
	products, err := source.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return products, nil
}

func (c *Components) newLocker(cfg *bootstrap.Config) (port.ProductLocker, error) {
	switch cfg.Locker.Kind {
	case "", "memory":
		return infrastructure.NewMemoryLocker(), nil
	case "redis":
		if cfg.Infra.Redis.Addr == "" {
			return nil, errors.New("redis locker requires infra.redis.addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Infra.Redis.Addr})
		c.closers = append(c.closers, client.Close)
		return adapter.NewRedisLocker(client, redisLockTTL), nil
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, zookeeperTimeout)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { conn.Close(); return nil })
		return zookeeper.NewProductLocker(conn), nil
	default:
		return nil, errors.Errorf("unknown locker kind %q", cfg.Locker.Kind)
	}
}

func (c *Components) newPublisher(cfg *bootstrap.Config) port.ReceiptPublisher {
	if len(cfg.Infra.Kafka.Brokers) == 0 {
		return adapter.NewReceiptLogAdapter()
	}
	topic := cfg.Infra.Kafka.Topic
	if topic == "" {
		topic = adapter.ReceiptTopic
	}
	publisher := adapter.NewReceiptKafkaAdapter(adapter.NewReceiptKafkaWriter(cfg.Infra.Kafka.Brokers, topic))
	c.closers = append(c.closers, publisher.Close)
	return publisher
}
