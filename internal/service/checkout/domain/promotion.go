package domain

import (
	"time"

	"github.com/pkg/errors"
)

// PromotionType 是促销表中的促销名称，例如 "탄산2+1"
type PromotionType string

// PromotionTypeNone 等价于没有促销
const PromotionTypeNone PromotionType = "NONE"

// Promotion 描述 "买 N 送 M" 规则及其生效日期区间（闭区间）。
// 加载后不可变，多个商品共享同一个引用。
type Promotion struct {
	Type            PromotionType
	TriggerQuantity int
	BonusQuantity   int
	StartDate       time.Time
	EndDate         time.Time
	// Condition 是可选的 CEL 表达式，为空表示无额外条件
	Condition string
}

// NewPromotion 校验并创建促销规则
func NewPromotion(promotionType PromotionType, trigger, bonus int, start, end time.Time) (*Promotion, error) {
	if promotionType == "" {
		return nil, errors.Wrap(ErrInvalidCatalogRecord, "promotion name is empty")
	}
	if trigger <= 0 {
		return nil, errors.Wrapf(ErrInvalidCatalogRecord, "promotion %q: trigger quantity must be positive, got %d", promotionType, trigger)
	}
	if bonus <= 0 {
		return nil, errors.Wrapf(ErrInvalidCatalogRecord, "promotion %q: bonus quantity must be positive, got %d", promotionType, bonus)
	}
	if dateKey(start) > dateKey(end) {
		return nil, errors.Wrapf(ErrInvalidCatalogRecord, "promotion %q: start date %s is after end date %s",
			promotionType, start.Format(DateLayout), end.Format(DateLayout))
	}
	return &Promotion{
		Type:            promotionType,
		TriggerQuantity: trigger,
		BonusQuantity:   bonus,
		StartDate:       start,
		EndDate:         end,
	}, nil
}

// IsActive 当且仅当类型不是 NONE 且 now 落在生效区间内时返回 true
func (p *Promotion) IsActive(now time.Time) bool {
	if p == nil || p.Type == "" || p.Type == PromotionTypeNone {
		return false
	}
	today := dateKey(now)
	return today >= dateKey(p.StartDate) && today <= dateKey(p.EndDate)
}

// CalculateBonusQuantity 按完整的触发数量块计算赠品数量，未生效时为 0
func (p *Promotion) CalculateBonusQuantity(usedQuantity int, now time.Time) int {
	if !p.IsActive(now) || usedQuantity <= 0 {
		return 0
	}
	return usedQuantity / p.TriggerQuantity * p.BonusQuantity
}

// CalculatePromotionReduction 返回为满足 requested（含赠品）需要从促销库存扣减的数量，未生效时为 0。
// 调用方负责按实际库存截断。
func (p *Promotion) CalculatePromotionReduction(requestedQuantity, bonusQuantity int, now time.Time) int {
	if !p.IsActive(now) {
		return 0
	}
	if reduction := requestedQuantity - bonusQuantity; reduction > 0 {
		return reduction
	}
	return 0
}

// AdditionalRequiredForBonus 数量低于触发数量时返回还差几件，否则为 0
func (p *Promotion) AdditionalRequiredForBonus(quantity int) int {
	if p == nil || quantity <= 0 || quantity >= p.TriggerQuantity {
		return 0
	}
	return p.TriggerQuantity - quantity
}

// DateLayout 是促销表中日期的格式
const DateLayout = "2006-01-02"

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
