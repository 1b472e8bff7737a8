package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine 收据中的一行，Amount 为实付部分（不含赠品）
type ReceiptLine struct {
	AllocationResult
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewReceiptLine 根据分配结果和单价生成收据行
func NewReceiptLine(result AllocationResult, unitPrice decimal.Decimal) ReceiptLine {
	return ReceiptLine{
		AllocationResult: result,
		UnitPrice:        unitPrice,
		Amount:           unitPrice.Mul(decimal.NewFromInt(int64(result.PurchasedQuantity))),
	}
}

// Receipt 一次结账的收据。
// TotalAmount 按带走的全部件数（含赠品）计价，PromotionDiscount 为赠品价值。
type Receipt struct {
	ID                string          `json:"id"`
	CreatedAt         time.Time       `json:"createdAt"`
	Lines             []ReceiptLine   `json:"lines"`
	TotalQuantity     int             `json:"totalQuantity"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	PromotionDiscount decimal.Decimal `json:"promotionDiscount"`
	AmountDue         decimal.Decimal `json:"amountDue"`
}

// NewReceipt 汇总收据行
func NewReceipt(id string, createdAt time.Time, lines []ReceiptLine) *Receipt {
	r := &Receipt{
		ID:                id,
		CreatedAt:         createdAt,
		Lines:             lines,
		TotalAmount:       decimal.Zero,
		PromotionDiscount: decimal.Zero,
	}
	for _, l := range lines {
		bonus := decimal.NewFromInt(int64(l.BonusQuantity))
		r.TotalQuantity += l.PurchasedQuantity + l.BonusQuantity
		r.TotalAmount = r.TotalAmount.Add(l.Amount).Add(l.UnitPrice.Mul(bonus))
		r.PromotionDiscount = r.PromotionDiscount.Add(l.UnitPrice.Mul(bonus))
	}
	r.AmountDue = r.TotalAmount.Sub(r.PromotionDiscount)
	return r
}

// BonusLines 返回有赠品的行
func (r *Receipt) BonusLines() []ReceiptLine {
	var out []ReceiptLine
	for _, l := range r.Lines {
		if l.BonusQuantity > 0 {
			out = append(out, l)
		}
	}
	return out
}
