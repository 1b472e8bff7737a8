package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Product 是一个商品实体，持有普通库存和促销库存两个池。
// 库存只通过 Reduce* 方法修改，且永远不会小于 0。
type Product struct {
	Name           string
	Price          decimal.Decimal
	RegularStock   int
	PromotionStock int
	Promotion      *Promotion
}

// NewProduct 校验并创建商品
func NewProduct(name string, price decimal.Decimal, regularStock, promotionStock int, promotion *Promotion) (*Product, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidCatalogRecord, "product name is empty")
	}
	if price.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidCatalogRecord, "product %q: negative price %s", name, price)
	}
	if regularStock < 0 || promotionStock < 0 {
		return nil, errors.Wrapf(ErrInvalidCatalogRecord, "product %q: negative stock", name)
	}
	return &Product{
		Name:           name,
		Price:          price,
		RegularStock:   regularStock,
		PromotionStock: promotionStock,
		Promotion:      promotion,
	}, nil
}

// HasActivePromotion 促销生效且仍有促销库存
func (p *Product) HasActivePromotion(now time.Time) bool {
	return p.Promotion.IsActive(now) && p.PromotionStock > 0
}

// SellablePromotionStock 促销未生效时促销库存不可售，但不会被清零
func (p *Product) SellablePromotionStock(now time.Time) int {
	if !p.Promotion.IsActive(now) {
		return 0
	}
	return p.PromotionStock
}

// AvailableStock 当前可售的总库存
func (p *Product) AvailableStock(now time.Time) int {
	return p.RegularStock + p.SellablePromotionStock(now)
}

// ReduceRegularStock 扣减普通库存，返回未能满足的剩余数量
func (p *Product) ReduceRegularStock(quantity int) int {
	if quantity <= 0 {
		return 0
	}
	reduction := min(p.RegularStock, quantity)
	p.RegularStock -= reduction
	return quantity - reduction
}

// ReducePromotionStock 扣减促销库存，返回未能满足的剩余数量
func (p *Product) ReducePromotionStock(quantity int) int {
	if quantity <= 0 {
		return 0
	}
	reduction := min(p.PromotionStock, quantity)
	p.PromotionStock -= reduction
	return quantity - reduction
}

// ReduceStock 按拆分落实扣减：先促销库存，不足部分转普通库存。
// 扣减前先检查可行性，无法满足时返回 ErrStockInconsistent 且不修改任何库存。
func (p *Product) ReduceStock(split Split, now time.Time) (AllocationResult, error) {
	result := AllocationResult{ProductName: p.Name}
	if split.PromoUsed < 0 || split.RegularUsed < 0 {
		return result, errors.Wrapf(ErrInvalidQuantity, "product %q: split %+v", p.Name, split)
	}

	total := split.Total()
	promoTake := 0
	if p.HasActivePromotion(now) {
		promoTake = min(split.PromoUsed, p.PromotionStock)
	}
	if need := total - promoTake; need > p.RegularStock {
		return result, errors.Wrapf(ErrStockInconsistent,
			"product %q: %d regular units required, %d in stock", p.Name, need, p.RegularStock)
	}

	if promoTake > 0 {
		bonus := p.Promotion.CalculateBonusQuantity(promoTake, now)
		reduction := min(p.Promotion.CalculatePromotionReduction(promoTake+bonus, bonus, now), p.PromotionStock)
		p.ReducePromotionStock(reduction)
		result.PromoUsed = reduction
		// 赠品不能超过扣减后剩余的促销库存
		result.BonusQuantity = min(bonus, p.PromotionStock)
	}

	regular := total - result.PromoUsed
	if rest := p.ReduceRegularStock(regular); rest > 0 {
		return result, errors.Wrapf(ErrStockInconsistent, "product %q: %d units left unfulfilled", p.Name, rest)
	}
	result.RegularUsed = regular
	result.PurchasedQuantity = result.PromoUsed + result.RegularUsed
	return result, nil
}

// Clone 返回一个副本，促销规则仍共享引用
func (p *Product) Clone() *Product {
	c := *p
	return &c
}
