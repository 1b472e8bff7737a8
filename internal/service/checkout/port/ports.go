package port

import (
	"context"

	"convenience/internal/service/checkout/domain"
)

// QuestionKind 区分两个需要顾客确认的分支
type QuestionKind string

const (
	// QuestionPayFullPrice 促销库存不足，是否按原价购买未覆盖的部分
	QuestionPayFullPrice QuestionKind = "PAY_FULL_PRICE"
	// QuestionAddForBonus 是否再拿几件以获得赠品
	QuestionAddForBonus QuestionKind = "ADD_FOR_BONUS"
)

// Question 是分配引擎向外部确认者提出的是/否问题
type Question struct {
	Kind        QuestionKind `json:"kind"`
	ProductName string       `json:"productName"`
	Quantity    int          `json:"quantity"`
	BonusGain   int          `json:"bonusGain,omitempty"`
}

// Confirmer 是同步确认的出站端口，控制台、websocket 等都实现它
type Confirmer interface {
	Confirm(ctx context.Context, q Question) (bool, error)
}

// ProductLocker 保证同一商品的 校验-扣减 序列互斥执行
type ProductLocker interface {
	Lock(ctx context.Context, productName string) (unlock func(), err error)
}

// ReceiptPublisher 在结账完成后发布收据
type ReceiptPublisher interface {
	PublishReceipt(ctx context.Context, receipt *domain.Receipt) error
}

// AllocationRecorder 记录分配结果，用于指标统计
type AllocationRecorder interface {
	RecordLine(outcome string, result domain.AllocationResult)
	RecordAnswer(kind QuestionKind, accepted bool)
}
