package infrastructure

import (
	"context"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"convenience/internal/service/checkout/domain"
)

// GormCatalogSource 从 MySQL 读取目录。只读，库存不会写回数据库。
type GormCatalogSource struct {
	db *gorm.DB
}

// NewGormCatalogSource 使用已有的 *gorm.DB
func NewGormCatalogSource(db *gorm.DB) *GormCatalogSource {
	return &GormCatalogSource{db: db}
}

// NewMySQLCatalogSource 校验 DSN 并打开 MySQL 连接
func NewMySQLCatalogSource(dsn string) (*GormCatalogSource, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(normalized), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql catalog")
	}
	return NewGormCatalogSource(db), nil
}

// NormalizeDSN 解析 DSN，并强制 parseTime，保证日期列能扫描到 time.Time
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql dsn")
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (s *GormCatalogSource) Load(ctx context.Context) ([]*domain.Product, error) {
	var promoModels []PromotionModel
	if err := s.db.WithContext(ctx).Order("id").Find(&promoModels).Error; err != nil {
		return nil, errors.Wrap(err, "query promotions")
	}
	var productModels []ProductModel
	if err := s.db.WithContext(ctx).Order("id").Find(&productModels).Error; err != nil {
		return nil, errors.Wrap(err, "query products")
	}

	promotions := make([]domain.PromotionRecord, 0, len(promoModels))
	for i := range promoModels {
		promotions = append(promotions, ToPromotionRecord(&promoModels[i]))
	}
	products := make([]domain.ProductRecord, 0, len(productModels))
	for i := range productModels {
		products = append(products, ToProductRecord(&productModels[i]))
	}
	return domain.BuildProducts(products, promotions)
}

// Migrate 创建目录表，供初始化脚本使用
func (s *GormCatalogSource) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&PromotionModel{}, &ProductModel{})
}
