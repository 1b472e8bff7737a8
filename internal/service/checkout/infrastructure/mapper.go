package infrastructure

import (
	"convenience/internal/service/checkout/domain"
)

// ToProductRecord 将数据库模型转换为目录记录，NULL 促销视为普通行
func ToProductRecord(model *ProductModel) domain.ProductRecord {
	promotion := domain.NoPromotion
	if model.Promotion.Valid && model.Promotion.String != "" {
		promotion = model.Promotion.String
	}
	return domain.ProductRecord{
		Name:      model.Name,
		Price:     model.Price,
		Quantity:  model.Quantity,
		Promotion: promotion,
	}
}

// ToPromotionRecord 将数据库模型转换为目录记录
func ToPromotionRecord(model *PromotionModel) domain.PromotionRecord {
	return domain.PromotionRecord{
		Name:      model.Name,
		Buy:       model.Buy,
		Get:       model.Get,
		StartDate: model.StartDate,
		EndDate:   model.EndDate,
		Condition: model.Condition,
	}
}
