package application

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// ErrDecisionRequired 提交时缺少某个确认问题的答案
var ErrDecisionRequired = errors.New("decision required")

// DecisionRequiredError 携带待确认的问题
type DecisionRequiredError struct {
	Question port.Question
}

func (e *DecisionRequiredError) Error() string {
	return fmt.Sprintf("%s: %s x%d", ErrDecisionRequired, e.Question.Kind, e.Question.Quantity)
}

func (e *DecisionRequiredError) Is(target error) bool {
	return target == ErrDecisionRequired
}

// OverflowDeclinePolicy 决定顾客拒绝原价购买超出部分时如何处理该行
type OverflowDeclinePolicy string

const (
	// OverflowDeclineCap 只购买促销库存能覆盖的部分
	OverflowDeclineCap OverflowDeclinePolicy = "cap"
	// OverflowDeclineAbandon 放弃整行，不扣减任何库存
	OverflowDeclineAbandon OverflowDeclinePolicy = "abandon"
	// OverflowDeclineProceed 仍按原数量购买，超出部分按原价
	OverflowDeclineProceed OverflowDeclinePolicy = "proceed"
)

// ParseOverflowDeclinePolicy 解析配置值，空字符串视为 cap
func ParseOverflowDeclinePolicy(s string) (OverflowDeclinePolicy, error) {
	switch p := OverflowDeclinePolicy(s); p {
	case "":
		return OverflowDeclineCap, nil
	case OverflowDeclineCap, OverflowDeclineAbandon, OverflowDeclineProceed:
		return p, nil
	default:
		return "", errors.Errorf("unknown overflow decline policy %q", s)
	}
}

// LineRequest 一个购买行
type LineRequest struct {
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// Answers 已知的确认答案
type Answers map[port.QuestionKind]bool

// LineStatus 购买行的处理状态
type LineStatus string

const (
	LineReady            LineStatus = "READY"
	LineDecisionRequired LineStatus = "DECISION_REQUIRED"
	LineAbandoned        LineStatus = "ABANDONED"
	LineCompleted        LineStatus = "COMPLETED"
)

// Plan 是一次评估或提交的结果。
// 评估时 Result 是基于副本的预览，提交后是真实扣减结果。
type Plan struct {
	Request          LineRequest              `json:"request"`
	Status           LineStatus               `json:"status"`
	Question         *port.Question           `json:"question,omitempty"`
	PromotionApplied bool                     `json:"promotionApplied"`
	Quantity         int                      `json:"quantity"`
	Split            domain.Split             `json:"split"`
	UnitPrice        decimal.Decimal          `json:"unitPrice"`
	Result           *domain.AllocationResult `json:"result,omitempty"`
}

// CheckoutRequest 一次结账
type CheckoutRequest struct {
	Lines []LineRequest `json:"lines"`
}

// MergeLines 合并同名商品的购买行，保持首次出现的顺序
func MergeLines(lines []LineRequest) []LineRequest {
	index := make(map[string]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductName]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductName] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

// ProductView 商品库存的只读视图
type ProductView struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	RegularStock    int             `json:"regularStock"`
	PromotionStock  int             `json:"promotionStock"`
	Promotion       string          `json:"promotion,omitempty"`
	PromotionActive bool            `json:"promotionActive"`
}
