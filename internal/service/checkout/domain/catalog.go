package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// NoPromotion 是商品表中表示“无促销”的取值
const NoPromotion = "null"

// ProductRecord 对应商品表中的一行，一个商品最多两行：促销行和普通行
type ProductRecord struct {
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Promotion string
}

func (r ProductRecord) isPromotional() bool {
	return r.Promotion != "" && r.Promotion != NoPromotion
}

// PromotionRecord 对应促销表中的一行
type PromotionRecord struct {
	Name      string
	Buy       int
	Get       int
	StartDate time.Time
	EndDate   time.Time
	Condition string
}

// BuildProducts 把目录记录合并为商品实体，保持首次出现的顺序。
// 任何不合法的记录都会返回 ErrInvalidCatalogRecord。
func BuildProducts(products []ProductRecord, promotions []PromotionRecord) ([]*Product, error) {
	promos := make(map[string]*Promotion, len(promotions))
	for _, rec := range promotions {
		if _, dup := promos[rec.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "duplicate promotion %q", rec.Name)
		}
		promo, err := NewPromotion(PromotionType(rec.Name), rec.Buy, rec.Get, rec.StartDate, rec.EndDate)
		if err != nil {
			return nil, err
		}
		promo.Condition = rec.Condition
		promos[rec.Name] = promo
	}

	var ordered []*Product
	byName := make(map[string]*Product)
	seenPromoRow := make(map[string]bool)
	seenPlainRow := make(map[string]bool)

	for i, rec := range products {
		if rec.Name == "" {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d: empty product name", i+1)
		}
		if rec.Price.IsNegative() || rec.Quantity < 0 {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d (%s): negative price or quantity", i+1, rec.Name)
		}

		product, ok := byName[rec.Name]
		if !ok {
			p, err := NewProduct(rec.Name, rec.Price, 0, 0, nil)
			if err != nil {
				return nil, err
			}
			product = p
			byName[rec.Name] = product
			ordered = append(ordered, product)
		} else if !product.Price.Equal(rec.Price) {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d (%s): price %s conflicts with %s",
				i+1, rec.Name, rec.Price, product.Price)
		}

		if !rec.isPromotional() {
			if seenPlainRow[rec.Name] {
				return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d (%s): duplicate regular stock row", i+1, rec.Name)
			}
			seenPlainRow[rec.Name] = true
			product.RegularStock = rec.Quantity
			continue
		}

		promo, ok := promos[rec.Promotion]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d (%s): unknown promotion %q", i+1, rec.Name, rec.Promotion)
		}
		if seenPromoRow[rec.Name] {
			return nil, errors.Wrapf(ErrInvalidCatalogRecord, "row %d (%s): duplicate promotion stock row", i+1, rec.Name)
		}
		seenPromoRow[rec.Name] = true
		product.PromotionStock = rec.Quantity
		product.Promotion = promo
	}
	return ordered, nil
}
