package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// LineContext 在分配责任链中传递单个购买行的上下文
type LineContext struct {
	Ctx     context.Context
	Tracer  trace.Tracer
	Now     time.Time
	Repo    domain.ProductRepository
	Rules   domain.RuleEngine
	Policy  OverflowDeclinePolicy
	Product *domain.Product
	Request LineRequest
	Answers Answers
	Commit  bool

	Plan *Plan

	overflow bool
}

// ask 返回已知答案；没有答案时把计划标记为待确认，链路停止
func (c *LineContext) ask(q port.Question) (answer, known bool) {
	answer, known = c.Answers[q.Kind]
	if !known {
		c.Plan.Status = LineDecisionRequired
		c.Plan.Question = &q
	}
	return answer, known
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(lineCtx *LineContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(lineCtx *LineContext) error {
	if h.next != nil {
		return h.next.Handle(lineCtx)
	}
	return nil
}

// ValidateStockHandler 校验请求数量不超过可售总库存
type ValidateStockHandler struct {
	NextHandler
}

func (h *ValidateStockHandler) Handle(lineCtx *LineContext) error {
	ctx, span := lineCtx.Tracer.Start(lineCtx.Ctx, "allocation.ValidateStock")
	defer span.End()

	requested := lineCtx.Request.Quantity
	if requested <= 0 {
		err := errors.Wrapf(domain.ErrInvalidQuantity, "%s: got %d", lineCtx.Request.ProductName, requested)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid quantity")
		return err
	}

	available, err := availableStock(ctx, lineCtx.Repo, lineCtx.Product, lineCtx.Now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("stock.available", available), attribute.Int("line.requested", requested))

	if requested > available {
		err := errors.Wrapf(domain.ErrOverstockRequested, "%s: requested %d, available %d",
			lineCtx.Product.Name, requested, available)
		span.RecordError(err)
		span.SetStatus(codes.Error, "overstock")
		return err
	}

	span.AddEvent("stock validated")
	return h.executeNext(lineCtx)
}

// availableStock 普通库存取自同名的普通商品，找不到时退回到商品自身
func availableStock(ctx context.Context, repo domain.ProductRepository, product *domain.Product, now time.Time) (int, error) {
	general := product
	if repo != nil {
		found, err := repo.FindGeneralProductByName(ctx, product.Name)
		switch {
		case err == nil:
			general = found
		case !errors.Is(err, domain.ErrProductNotFound):
			return 0, err
		}
	}
	return general.RegularStock + product.SellablePromotionStock(now), nil
}

// PromotionCheckHandler 判断促销是否适用于这一行
type PromotionCheckHandler struct {
	NextHandler
}

func (h *PromotionCheckHandler) Handle(lineCtx *LineContext) error {
	ctx, span := lineCtx.Tracer.Start(lineCtx.Ctx, "allocation.PromotionCheck")
	defer span.End()

	product := lineCtx.Product
	applies := product.HasActivePromotion(lineCtx.Now)

	if promo := product.Promotion; applies && promo.Condition != "" && lineCtx.Rules != nil {
		ok, err := lineCtx.Rules.Evaluate(promo.Condition, domain.Fact{
			Product:   product.Name,
			Quantity:  lineCtx.Request.Quantity,
			Promotion: string(promo.Type),
			Now:       lineCtx.Now,
		})
		if err != nil {
			err = errors.Wrapf(err, "evaluate condition of promotion %q", promo.Type)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			return err
		}
		if !ok {
			logger.Ctx(ctx).Debug().Str("product", product.Name).Str("promotion", string(promo.Type)).
				Msg("promotion condition not met")
		}
		applies = ok
	}

	lineCtx.Plan.PromotionApplied = applies
	lineCtx.Plan.Quantity = lineCtx.Request.Quantity
	span.SetAttributes(attribute.Bool("promotion.applied", applies))

	if !applies {
		if lineCtx.Request.Quantity > product.RegularStock {
			err := errors.Wrapf(domain.ErrOverstockRequested, "%s: requested %d, regular stock %d",
				product.Name, lineCtx.Request.Quantity, product.RegularStock)
			span.RecordError(err)
			span.SetStatus(codes.Error, "overstock")
			return err
		}
		lineCtx.Plan.Split = domain.Split{RegularUsed: lineCtx.Request.Quantity}
	}

	return h.executeNext(lineCtx)
}

// OverflowHandler 促销库存不足时询问是否按原价购买超出部分
type OverflowHandler struct {
	NextHandler
}

func (h *OverflowHandler) Handle(lineCtx *LineContext) error {
	plan := lineCtx.Plan
	promoStock := lineCtx.Product.PromotionStock
	if !plan.PromotionApplied || plan.Quantity <= promoStock {
		return h.executeNext(lineCtx)
	}

	_, span := lineCtx.Tracer.Start(lineCtx.Ctx, "allocation.Overflow")
	defer span.End()

	lineCtx.overflow = true
	uncovered := plan.Quantity - promoStock
	span.SetAttributes(attribute.Int("line.uncovered", uncovered))

	accepted, known := lineCtx.ask(port.Question{
		Kind:        port.QuestionPayFullPrice,
		ProductName: lineCtx.Product.Name,
		Quantity:    uncovered,
	})
	if !known {
		span.AddEvent("waiting for full price confirmation")
		return nil
	}

	if accepted {
		plan.Split = domain.Split{PromoUsed: promoStock, RegularUsed: uncovered}
		return h.executeNext(lineCtx)
	}

	span.AddEvent("full price declined", trace.WithAttributes(attribute.String("policy", string(lineCtx.Policy))))
	switch lineCtx.Policy {
	case OverflowDeclineAbandon:
		plan.Status = LineAbandoned
		plan.Quantity = 0
		plan.Split = domain.Split{}
		return nil
	case OverflowDeclineProceed:
		plan.Split = domain.Split{PromoUsed: promoStock, RegularUsed: uncovered}
	default:
		plan.Quantity = promoStock
		plan.Split = domain.Split{PromoUsed: promoStock}
	}
	return h.executeNext(lineCtx)
}

// BonusOfferHandler 数量低于触发数量时询问是否追加以获得赠品
type BonusOfferHandler struct {
	NextHandler
}

func (h *BonusOfferHandler) Handle(lineCtx *LineContext) error {
	plan := lineCtx.Plan
	if !plan.PromotionApplied || lineCtx.overflow {
		return h.executeNext(lineCtx)
	}

	_, span := lineCtx.Tracer.Start(lineCtx.Ctx, "allocation.BonusOffer")
	defer span.End()

	product := lineCtx.Product
	plan.Split = domain.Split{PromoUsed: plan.Quantity}

	additional := product.Promotion.AdditionalRequiredForBonus(plan.Quantity)
	if additional == 0 || plan.Quantity+additional > product.PromotionStock {
		return h.executeNext(lineCtx)
	}
	span.SetAttributes(attribute.Int("line.additional", additional))

	accepted, known := lineCtx.ask(port.Question{
		Kind:        port.QuestionAddForBonus,
		ProductName: product.Name,
		Quantity:    additional,
		BonusGain:   product.Promotion.BonusQuantity,
	})
	if !known {
		span.AddEvent("waiting for bonus offer confirmation")
		return nil
	}
	if accepted {
		plan.Quantity += additional
		plan.Split = domain.Split{PromoUsed: plan.Quantity}
		span.AddEvent("bonus offer accepted")
	}
	return h.executeNext(lineCtx)
}

// CommitHandler 把拆分交给 Product.ReduceStock；评估模式下作用在副本上
type CommitHandler struct {
	NextHandler
}

func (h *CommitHandler) Handle(lineCtx *LineContext) error {
	ctx, span := lineCtx.Tracer.Start(lineCtx.Ctx, "allocation.Commit")
	defer span.End()

	plan := lineCtx.Plan
	target := lineCtx.Product
	if !lineCtx.Commit {
		target = target.Clone()
	}

	result, err := target.ReduceStock(plan.Split, lineCtx.Now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock reduction failed")
		return err
	}
	plan.Result = &result

	if lineCtx.Commit {
		if err := lineCtx.Repo.Save(ctx, target); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
			return errors.Wrapf(err, "save %s", target.Name)
		}
		plan.Status = LineCompleted
	} else {
		plan.Status = LineReady
	}
	span.SetAttributes(
		attribute.Int("result.promo_used", result.PromoUsed),
		attribute.Int("result.regular_used", result.RegularUsed),
		attribute.Int("result.bonus", result.BonusQuantity),
		attribute.Bool("commit", lineCtx.Commit),
	)
	return h.executeNext(lineCtx)
}
