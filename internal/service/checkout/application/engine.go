package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// maxConfirmRounds 一行最多两个问题，留出库存在两次提交之间变化的余量
const maxConfirmRounds = 4

// AllocationEngine 负责单个购买行的分配决策。
// 对外提供两阶段协议：Evaluate 得到待确认的问题，Commit 携带答案提交。
type AllocationEngine struct {
	repo     domain.ProductRepository
	rules    domain.RuleEngine
	locker   port.ProductLocker
	recorder port.AllocationRecorder
	tracer   trace.Tracer
	now      func() time.Time
	policy   OverflowDeclinePolicy
}

type Option func(*AllocationEngine)

func WithRuleEngine(rules domain.RuleEngine) Option {
	return func(e *AllocationEngine) { e.rules = rules }
}

func WithLocker(locker port.ProductLocker) Option {
	return func(e *AllocationEngine) { e.locker = locker }
}

func WithRecorder(recorder port.AllocationRecorder) Option {
	return func(e *AllocationEngine) { e.recorder = recorder }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *AllocationEngine) { e.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(e *AllocationEngine) { e.now = now }
}

func WithOverflowDeclinePolicy(policy OverflowDeclinePolicy) Option {
	return func(e *AllocationEngine) { e.policy = policy }
}

// NewAllocationEngine 创建分配引擎。不配置 locker 时不做互斥，适用于单线程结账。
func NewAllocationEngine(repo domain.ProductRepository, opts ...Option) *AllocationEngine {
	e := &AllocationEngine{
		repo:   repo,
		tracer: otel.Tracer("checkout"),
		now:    time.Now,
		policy: OverflowDeclineCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *AllocationEngine) Policy() OverflowDeclinePolicy {
	return e.policy
}

// Validate 只检查商品是否存在、数量是否合法且不超过可售库存，不修改库存
func (e *AllocationEngine) Validate(ctx context.Context, req LineRequest) error {
	unlock, err := e.lock(ctx, req.ProductName)
	if err != nil {
		return err
	}
	defer unlock()

	product, err := e.repo.FindByName(ctx, req.ProductName)
	if err != nil {
		return err
	}

	lineCtx := e.newLineContext(ctx, product, req, nil, false)
	return new(ValidateStockHandler).Handle(lineCtx)
}

// Evaluate 在不修改库存的前提下计算计划。缺少答案时返回 DECISION_REQUIRED 状态的计划。
func (e *AllocationEngine) Evaluate(ctx context.Context, req LineRequest, answers Answers) (*Plan, error) {
	return e.run(ctx, req, answers, false)
}

// Commit 携带答案执行分配并扣减库存。缺少答案时返回 *DecisionRequiredError，库存不变。
func (e *AllocationEngine) Commit(ctx context.Context, req LineRequest, answers Answers) (*Plan, error) {
	plan, err := e.run(ctx, req, answers, true)
	if err != nil {
		return nil, err
	}
	if plan.Status == LineDecisionRequired {
		return plan, &DecisionRequiredError{Question: *plan.Question}
	}
	return plan, nil
}

// Allocate 驱动两阶段协议：遇到待确认的问题时同步询问 confirmer，然后重新提交
func (e *AllocationEngine) Allocate(ctx context.Context, req LineRequest, confirmer port.Confirmer) (*Plan, error) {
	return e.allocate(ctx, req, Answers{}, confirmer)
}

// Decide 只用 Evaluate 收集这一行需要的全部答案，不修改库存
func (e *AllocationEngine) Decide(ctx context.Context, req LineRequest, confirmer port.Confirmer) (Answers, error) {
	answers := Answers{}
	for round := 0; round < maxConfirmRounds; round++ {
		plan, err := e.Evaluate(ctx, req, answers)
		if err != nil {
			return nil, err
		}
		if plan.Status != LineDecisionRequired {
			return answers, nil
		}
		decision := &DecisionRequiredError{Question: *plan.Question}
		if confirmer == nil {
			return nil, decision
		}
		if err := e.confirm(ctx, req, decision.Question, confirmer, answers); err != nil {
			return nil, err
		}
	}
	return nil, errors.Errorf("allocation for %s did not settle after %d confirmations", req.ProductName, maxConfirmRounds)
}

// allocate 从已有答案开始提交，库存在两次提交之间变化时继续询问
func (e *AllocationEngine) allocate(ctx context.Context, req LineRequest, answers Answers, confirmer port.Confirmer) (*Plan, error) {
	for round := 0; round < maxConfirmRounds; round++ {
		plan, err := e.Commit(ctx, req, answers)

		var decision *DecisionRequiredError
		if !errors.As(err, &decision) {
			return plan, err
		}
		if confirmer == nil {
			return plan, err
		}
		if err := e.confirm(ctx, req, decision.Question, confirmer, answers); err != nil {
			return nil, err
		}
	}
	return nil, errors.Errorf("allocation for %s did not settle after %d confirmations", req.ProductName, maxConfirmRounds)
}

func (e *AllocationEngine) confirm(ctx context.Context, req LineRequest, q port.Question, confirmer port.Confirmer, answers Answers) error {
	accepted, err := confirmer.Confirm(ctx, q)
	if err != nil {
		return errors.Wrapf(err, "confirm %s for %s", q.Kind, req.ProductName)
	}
	answers[q.Kind] = accepted
	if e.recorder != nil {
		e.recorder.RecordAnswer(q.Kind, accepted)
	}
	logger.Ctx(ctx).Info().
		Str("product", req.ProductName).
		Str("question", string(q.Kind)).
		Bool("accepted", accepted).
		Msg("confirmation answered")
	return nil
}

func (e *AllocationEngine) run(ctx context.Context, req LineRequest, answers Answers, commit bool) (*Plan, error) {
	ctx, span := e.tracer.Start(ctx, "allocation.Line", trace.WithAttributes(
		attribute.String("product.name", req.ProductName),
		attribute.Int("line.requested", req.Quantity),
		attribute.Bool("commit", commit),
	))
	defer span.End()

	// 先加锁再读取，保证 校验-扣减-保存 基于最新库存
	unlock, err := e.lock(ctx, req.ProductName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer unlock()

	product, err := e.repo.FindByName(ctx, req.ProductName)
	if err != nil {
		e.recordFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "product lookup failed")
		return nil, err
	}

	lineCtx := e.newLineContext(ctx, product, req, answers, commit)

	// 责任链：校验 -> 促销判断 -> 超出部分确认 -> 赠品追加确认 -> 扣减
	chain := new(ValidateStockHandler)
	chain.SetNext(new(PromotionCheckHandler)).
		SetNext(new(OverflowHandler)).
		SetNext(new(BonusOfferHandler)).
		SetNext(new(CommitHandler))

	if err := chain.Handle(lineCtx); err != nil {
		e.recordFailure(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Warn().Err(err).Str("product", req.ProductName).Msg("allocation rejected")
		return nil, err
	}

	plan := lineCtx.Plan
	span.SetAttributes(attribute.String("line.status", string(plan.Status)))
	if commit && e.recorder != nil {
		switch plan.Status {
		case LineCompleted:
			e.recorder.RecordLine("completed", *plan.Result)
		case LineAbandoned:
			e.recorder.RecordLine("abandoned", domain.AllocationResult{ProductName: product.Name})
		}
	}
	if commit && plan.Status == LineCompleted {
		logger.Ctx(ctx).Info().
			Str("product", product.Name).
			Int("promo_used", plan.Result.PromoUsed).
			Int("regular_used", plan.Result.RegularUsed).
			Int("bonus", plan.Result.BonusQuantity).
			Msg("line allocated")
	}
	return plan, nil
}

func (e *AllocationEngine) newLineContext(ctx context.Context, product *domain.Product, req LineRequest, answers Answers, commit bool) *LineContext {
	if answers == nil {
		answers = Answers{}
	}
	return &LineContext{
		Ctx:     ctx,
		Tracer:  e.tracer,
		Now:     e.now(),
		Repo:    e.repo,
		Rules:   e.rules,
		Policy:  e.policy,
		Product: product,
		Request: req,
		Answers: answers,
		Commit:  commit,
		Plan: &Plan{
			Request:   req,
			UnitPrice: product.Price,
		},
	}
}

func (e *AllocationEngine) lock(ctx context.Context, name string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, err := e.locker.Lock(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "lock product %s", name)
	}
	return unlock, nil
}

func (e *AllocationEngine) recordFailure(err error) {
	if e.recorder == nil {
		return
	}
	outcome := "error"
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrOverstockRequested):
		outcome = "overstock"
	case errors.Is(err, domain.ErrInvalidQuantity):
		outcome = "invalid"
	}
	e.recorder.RecordLine(outcome, domain.AllocationResult{})
}
