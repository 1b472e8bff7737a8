package domain

// Split 是分配引擎计算出的临时拆分，由 Product.ReduceStock 最终落实
type Split struct {
	PromoUsed   int `json:"promoUsed"`
	RegularUsed int `json:"regularUsed"`
}

func (s Split) Total() int {
	return s.PromoUsed + s.RegularUsed
}

// AllocationResult 是单个购买行的最终扣减结果。
// PurchasedQuantity 恒等于 RegularUsed + PromoUsed，赠品不计入。
type AllocationResult struct {
	ProductName       string `json:"productName"`
	PurchasedQuantity int    `json:"purchasedQuantity"`
	BonusQuantity     int    `json:"bonusQuantity"`
	RegularUsed       int    `json:"regularUsed"`
	PromoUsed         int    `json:"promoUsed"`
}
