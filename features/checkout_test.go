package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/infrastructure"
	"convenience/internal/service/checkout/port"
)

var today = time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)

// recordingConfirmer 对所有问题给出同一个答案，并记录问过的问题
type recordingConfirmer struct {
	answer bool
	asked  []port.Question
}

func (c *recordingConfirmer) Confirm(ctx context.Context, q port.Question) (bool, error) {
	c.asked = append(c.asked, q)
	return c.answer, nil
}

type checkoutTestContext struct {
	products  []*domain.Product
	policy    application.OverflowDeclinePolicy
	confirmer *recordingConfirmer
	repo      *infrastructure.MemoryProductRepository
	plan      *application.Plan
	err       error
}

func (c *checkoutTestContext) reset() {
	c.products = nil
	c.policy = application.OverflowDeclineCap
	c.confirmer = &recordingConfirmer{}
	c.repo = nil
	c.plan = nil
	c.err = nil
}

func (c *checkoutTestContext) find(name string) (*domain.Product, error) {
	for _, p := range c.products {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("product %q was not declared", name)
}

func (c *checkoutTestContext) theOverflowDeclinePolicyIs(policy string) error {
	p, err := application.ParseOverflowDeclinePolicy(policy)
	if err != nil {
		return err
	}
	c.policy = p
	return nil
}

func (c *checkoutTestContext) aProductPricedWithRegularAndPromotionUnits(name string, price, regular, promo int) error {
	p, err := domain.NewProduct(name, decimal.NewFromInt(int64(price)), regular, promo, nil)
	if err != nil {
		return err
	}
	c.products = append(c.products, p)
	return nil
}

func (c *checkoutTestContext) attachPromotion(name, promotion string, buy, get int, start, end time.Time) error {
	p, err := c.find(name)
	if err != nil {
		return err
	}
	promo, err := domain.NewPromotion(domain.PromotionType(promotion), buy, get, start, end)
	if err != nil {
		return err
	}
	p.Promotion = promo
	return nil
}

func (c *checkoutTestContext) hasAnActivePromotion(name, promotion string, buy, get int) error {
	return c.attachPromotion(name, promotion, buy, get, today.AddDate(0, -1, 0), today.AddDate(0, 1, 0))
}

func (c *checkoutTestContext) hasAnExpiredPromotion(name, promotion string, buy, get int) error {
	return c.attachPromotion(name, promotion, buy, get, today.AddDate(0, -2, 0), today.AddDate(0, 0, -1))
}

func (c *checkoutTestContext) theCustomerAnswersToEveryQuestion(answer string) error {
	switch answer {
	case "yes":
		c.confirmer.answer = true
	case "no":
		c.confirmer.answer = false
	default:
		return fmt.Errorf("answer must be yes or no, got %q", answer)
	}
	return nil
}

func (c *checkoutTestContext) theCustomerBuys(quantity int, name string) error {
	c.repo = infrastructure.NewMemoryProductRepository(c.products)
	engine := application.NewAllocationEngine(c.repo,
		application.WithClock(func() time.Time { return today }),
		application.WithLocker(infrastructure.NewMemoryLocker()),
		application.WithOverflowDeclinePolicy(c.policy),
	)
	c.plan, c.err = engine.Allocate(context.Background(), application.LineRequest{ProductName: name, Quantity: quantity}, c.confirmer)
	return nil
}

func (c *checkoutTestContext) theLineIs(status string) error {
	if c.err != nil {
		return c.err
	}
	want := map[string]application.LineStatus{
		"completed": application.LineCompleted,
		"abandoned": application.LineAbandoned,
	}[status]
	if c.plan.Status != want {
		return fmt.Errorf("expected line status %s, got %s", want, c.plan.Status)
	}
	return nil
}

func (c *checkoutTestContext) unitsAreAllocated(promo, regular, bonus int) error {
	if c.err != nil {
		return c.err
	}
	r := c.plan.Result
	if r == nil {
		return fmt.Errorf("line has no allocation result (status %s)", c.plan.Status)
	}
	if r.PromoUsed != promo || r.RegularUsed != regular || r.BonusQuantity != bonus {
		return fmt.Errorf("expected promo=%d regular=%d bonus=%d, got promo=%d regular=%d bonus=%d",
			promo, regular, bonus, r.PromoUsed, r.RegularUsed, r.BonusQuantity)
	}
	if r.PurchasedQuantity != r.PromoUsed+r.RegularUsed {
		return fmt.Errorf("purchased %d != promo %d + regular %d", r.PurchasedQuantity, r.PromoUsed, r.RegularUsed)
	}
	return nil
}

func (c *checkoutTestContext) thePurchasedQuantityIs(quantity int) error {
	if c.err != nil {
		return c.err
	}
	if got := c.plan.Result.PurchasedQuantity; got != quantity {
		return fmt.Errorf("expected purchased quantity %d, got %d", quantity, got)
	}
	return nil
}

func (c *checkoutTestContext) hasUnitsLeft(name string, regular, promo int) error {
	p, err := c.repo.FindByName(context.Background(), name)
	if err != nil {
		return err
	}
	if p.RegularStock != regular || p.PromotionStock != promo {
		return fmt.Errorf("expected %s stock regular=%d promo=%d, got regular=%d promo=%d",
			name, regular, promo, p.RegularStock, p.PromotionStock)
	}
	return nil
}

func (c *checkoutTestContext) theCustomerWasNotAskedAnything() error {
	if len(c.confirmer.asked) != 0 {
		return fmt.Errorf("expected no questions, got %+v", c.confirmer.asked)
	}
	return nil
}

func (c *checkoutTestContext) expectQuestion(want port.Question) error {
	for _, q := range c.confirmer.asked {
		if q == want {
			return nil
		}
	}
	return fmt.Errorf("expected question %+v, got %+v", want, c.confirmer.asked)
}

func (c *checkoutTestContext) theCustomerWasAskedToPayFullPriceFor(quantity int, name string) error {
	return c.expectQuestion(port.Question{Kind: port.QuestionPayFullPrice, ProductName: name, Quantity: quantity})
}

func (c *checkoutTestContext) theCustomerWasOfferedMoreForFree(quantity int, name string, bonus int) error {
	return c.expectQuestion(port.Question{Kind: port.QuestionAddForBonus, ProductName: name, Quantity: quantity, BonusGain: bonus})
}

func (c *checkoutTestContext) thePurchaseIsRejectedAs(kind string) error {
	want := map[string]error{
		"overstock": domain.ErrOverstockRequested,
		"not found": domain.ErrProductNotFound,
	}[kind]
	if want == nil {
		return fmt.Errorf("unknown rejection %q", kind)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %v, got %v", want, c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the overflow decline policy is "([^"]*)"$`, tc.theOverflowDeclinePolicyIs)
	ctx.Step(`^a product "([^"]*)" priced (\d+) with (\d+) regular and (\d+) promotion units$`, tc.aProductPricedWithRegularAndPromotionUnits)
	ctx.Step(`^"([^"]*)" has an active "([^"]*)" promotion buying (\d+) to get (\d+)$`, tc.hasAnActivePromotion)
	ctx.Step(`^"([^"]*)" has an expired "([^"]*)" promotion buying (\d+) to get (\d+)$`, tc.hasAnExpiredPromotion)
	ctx.Step(`^the customer answers "([^"]*)" to every question$`, tc.theCustomerAnswersToEveryQuestion)

	// When steps
	ctx.Step(`^the customer buys (\d+) "([^"]*)"$`, tc.theCustomerBuys)

	// Then steps
	ctx.Step(`^the line is (completed|abandoned)$`, tc.theLineIs)
	ctx.Step(`^(\d+) promotion units, (\d+) regular units and (\d+) bonus units are allocated$`, tc.unitsAreAllocated)
	ctx.Step(`^the purchased quantity is (\d+)$`, tc.thePurchasedQuantityIs)
	ctx.Step(`^"([^"]*)" has (\d+) regular and (\d+) promotion units left$`, tc.hasUnitsLeft)
	ctx.Step(`^the customer was not asked anything$`, tc.theCustomerWasNotAskedAnything)
	ctx.Step(`^the customer was asked to pay full price for (\d+) "([^"]*)"$`, tc.theCustomerWasAskedToPayFullPriceFor)
	ctx.Step(`^the customer was offered (\d+) more "([^"]*)" for (\d+) free$`, tc.theCustomerWasOfferedMoreForFree)
	ctx.Step(`^the purchase is rejected as "([^"]*)"$`, tc.thePurchaseIsRejectedAs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
