package adapter

import (
	"context"

	"github.com/rs/zerolog"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/domain"
)

// ReceiptLogAdapter 把收据写进日志，没有配置 Kafka 时使用
type ReceiptLogAdapter struct{}

func NewReceiptLogAdapter() *ReceiptLogAdapter {
	return &ReceiptLogAdapter{}
}

func (a *ReceiptLogAdapter) PublishReceipt(ctx context.Context, receipt *domain.Receipt) error {
	lines := zerolog.Arr()
	for _, l := range receipt.Lines {
		lines.Dict(zerolog.Dict().
			Str("product", l.ProductName).
			Int("quantity", l.PurchasedQuantity).
			Int("bonus", l.BonusQuantity).
			Str("amount", l.Amount.String()))
	}
	logger.Ctx(ctx).Info().
		Str("receipt_id", receipt.ID).
		Array("lines", lines).
		Int("total_quantity", receipt.TotalQuantity).
		Str("total_amount", receipt.TotalAmount.String()).
		Str("promotion_discount", receipt.PromotionDiscount.String()).
		Str("amount_due", receipt.AmountDue.String()).
		Msg("receipt issued")
	return nil
}
