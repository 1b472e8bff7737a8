package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// CheckoutService 定义了结账相关的业务用例
type CheckoutService struct {
	engine    *AllocationEngine
	repo      domain.ProductRepository
	publisher port.ReceiptPublisher
	tracer    trace.Tracer
	newID     func() string
	now       func() time.Time
}

// NewCheckoutService 创建结账服务，publisher 可以为 nil
func NewCheckoutService(engine *AllocationEngine, repo domain.ProductRepository, publisher port.ReceiptPublisher, tracer trace.Tracer) *CheckoutService {
	return &CheckoutService{
		engine:    engine,
		repo:      repo,
		publisher: publisher,
		tracer:    tracer,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *CheckoutService) Engine() *AllocationEngine {
	return s.engine
}

// Checkout 处理一次结账：先合并并整体校验所有行，再收集每一行的确认答案，最后统一扣减并生成、发布收据。
// 校验失败或确认中断时不会修改库存。
// 扣减阶段某一行失败时，已扣减的行仍会生成并发布收据，与错误一起返回。
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest, confirmer port.Confirmer) (*domain.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "service.Checkout")
	defer span.End()

	lines := MergeLines(req.Lines)
	if len(lines) == 0 {
		err := errors.Wrap(domain.ErrInvalidQuantity, "checkout has no lines")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("checkout.lines", len(lines)))

	for _, line := range lines {
		if err := s.engine.Validate(ctx, line); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return nil, err
		}
	}
	span.AddEvent("all lines validated")

	decided := make([]Answers, len(lines))
	for i, line := range lines {
		answers, err := s.engine.Decide(ctx, line, confirmer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "confirmation failed")
			return nil, errors.Wrapf(err, "confirm %s", line.ProductName)
		}
		decided[i] = answers
	}
	span.AddEvent("all lines confirmed")

	receiptLines := make([]domain.ReceiptLine, 0, len(lines))
	var commitErr error
	for i, line := range lines {
		plan, err := s.engine.allocate(ctx, line, decided[i], confirmer)
		if err != nil {
			commitErr = errors.Wrapf(err, "allocate %s", line.ProductName)
			span.RecordError(commitErr)
			span.SetStatus(codes.Error, "allocation failed")
			break
		}
		if plan.Status != LineCompleted || plan.Result.PurchasedQuantity == 0 {
			logger.Ctx(ctx).Info().Str("product", line.ProductName).Str("status", string(plan.Status)).Msg("line skipped")
			continue
		}
		receiptLines = append(receiptLines, domain.NewReceiptLine(*plan.Result, plan.UnitPrice))
	}
	if commitErr != nil && len(receiptLines) == 0 {
		return nil, commitErr
	}

	receipt := domain.NewReceipt(s.newID(), s.now(), receiptLines)
	span.SetAttributes(attribute.String("receipt.id", receipt.ID))

	if s.publisher != nil {
		if err := s.publisher.PublishReceipt(ctx, receipt); err != nil {
			// 库存已经扣减，发布失败只记录
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("receipt_id", receipt.ID).Msg("failed to publish receipt")
		}
	}

	if commitErr != nil {
		logger.Ctx(ctx).Error().Err(commitErr).
			Str("receipt_id", receipt.ID).
			Int("lines", len(receipt.Lines)).
			Msg("checkout partially completed")
		return receipt, commitErr
	}

	logger.Ctx(ctx).Info().
		Str("receipt_id", receipt.ID).
		Int("lines", len(receipt.Lines)).
		Str("amount_due", receipt.AmountDue.String()).
		Msg("checkout completed")
	return receipt, nil
}

// Products 返回当前库存
func (s *CheckoutService) Products(ctx context.Context) ([]ProductView, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		v := ProductView{
			Name:           p.Name,
			Price:          p.Price,
			RegularStock:   p.RegularStock,
			PromotionStock: p.PromotionStock,
		}
		if p.Promotion != nil {
			v.Promotion = string(p.Promotion.Type)
			v.PromotionActive = p.Promotion.IsActive(now)
		}
		views = append(views, v)
	}
	return views, nil
}
