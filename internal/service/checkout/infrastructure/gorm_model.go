package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductModel 对应数据库中的 catalog_product 表，一行是一个库存池
type ProductModel struct {
	gorm.Model
	Name      string          `gorm:"size:64;index"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)"`
	Quantity  int
	Promotion sql.NullString `gorm:"size:64"`
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "catalog_product"
}

// PromotionModel 对应数据库中的 catalog_promotion 表
type PromotionModel struct {
	gorm.Model
	Name      string `gorm:"size:64;uniqueIndex"`
	Buy       int
	Get       int
	StartDate time.Time `gorm:"type:date"`
	EndDate   time.Time `gorm:"type:date"`
	Condition string    `gorm:"type:text"`
}

// TableName 指定 GORM 应该使用的表名
func (PromotionModel) TableName() string {
	return "catalog_promotion"
}
