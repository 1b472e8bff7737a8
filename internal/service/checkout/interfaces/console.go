package interfaces

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// ErrInvalidInputFormat 购买输入不是 [상품명-수량],[상품명-수량] 形式
var ErrInvalidInputFormat = errors.New("invalid purchase input format")

const (
	msgWelcome       = "안녕하세요. W편의점입니다.\n현재 보유하고 있는 상품입니다.\n"
	msgPurchase      = "구매하실 상품명과 수량을 입력해 주세요. (예: [사이다-2],[감자칩-1])"
	msgPayFullPrice  = "현재 %s %d개는 프로모션 할인이 적용되지 않습니다. 정가로 구매하시겠습니까? (Y/N)"
	msgAddForBonus   = "현재 %s은(는) %d개를 더 가져오면 %d개를 무료로 받을 수 있습니다. 추가하시겠습니까? (Y/N)"
	msgContinue      = "감사합니다. 구매하고 싶은 다른 상품이 있나요? (Y/N)"
	msgInvalidFormat = "[ERROR] 올바르지 않은 형식으로 입력했습니다. 다시 입력해 주세요."
	msgNotFound      = "[ERROR] 존재하지 않는 상품입니다. 다시 입력해 주세요."
	msgOverstock     = "[ERROR] 재고 수량을 초과하여 구매할 수 없습니다. 다시 입력해 주세요."
	msgInvalidAnswer = "[ERROR] 잘못된 입력입니다. 다시 입력해 주세요."
)

var itemPattern = regexp.MustCompile(`^\[(.+)-(\d+)\]$`)

// ParsePurchaseInput 解析 "[콜라-10],[사이다-3]"，商品名取最后一个 '-' 之前的部分
func ParsePurchaseInput(input string) ([]application.LineRequest, error) {
	var lines []application.LineRequest
	for _, item := range strings.Split(input, ",") {
		m := itemPattern.FindStringSubmatch(strings.TrimSpace(item))
		if m == nil {
			return nil, errors.Wrapf(ErrInvalidInputFormat, "item %q", item)
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty <= 0 {
			return nil, errors.Wrapf(ErrInvalidInputFormat, "quantity in %q", item)
		}
		lines = append(lines, application.LineRequest{ProductName: strings.TrimSpace(m[1]), Quantity: qty})
	}
	return lines, nil
}

// Console 是基于文本流的交互终端，同时实现 port.Confirmer
type Console struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewScanner(in), out: out}
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *Console) readLine() (string, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// AskYesNo 输出提示并读取 Y/N，输入无效时提示错误并重新读取
func (c *Console) AskYesNo(prompt string) (bool, error) {
	for {
		c.println("\n" + prompt)
		answer, err := c.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(answer) {
		case "Y":
			return true, nil
		case "N":
			return false, nil
		}
		c.println(msgInvalidAnswer)
	}
}

func (c *Console) Confirm(ctx context.Context, q port.Question) (bool, error) {
	switch q.Kind {
	case port.QuestionPayFullPrice:
		return c.AskYesNo(fmt.Sprintf(msgPayFullPrice, q.ProductName, q.Quantity))
	case port.QuestionAddForBonus:
		return c.AskYesNo(fmt.Sprintf(msgAddForBonus, q.ProductName, q.Quantity, q.BonusGain))
	default:
		return false, errors.Errorf("unknown question kind %q", q.Kind)
	}
}

// ReadPurchase 读取一行购买输入，格式错误时重新读取
func (c *Console) ReadPurchase() ([]application.LineRequest, error) {
	for {
		c.println("\n" + msgPurchase)
		input, err := c.readLine()
		if err != nil {
			return nil, err
		}
		lines, err := ParsePurchaseInput(input)
		if err == nil {
			return lines, nil
		}
		c.PrintError(err)
	}
}

// PrintError 把领域错误转换为终端提示
func (c *Console) PrintError(err error) {
	switch {
	case errors.Is(err, ErrInvalidInputFormat), errors.Is(err, domain.ErrInvalidQuantity):
		c.println(msgInvalidFormat)
	case errors.Is(err, domain.ErrProductNotFound):
		c.println(msgNotFound)
	case errors.Is(err, domain.ErrOverstockRequested):
		c.println(msgOverstock)
	default:
		c.println("[ERROR] " + err.Error())
	}
}

// PrintProducts 输出当前库存，促销库存和普通库存各占一行
func (c *Console) PrintProducts(views []application.ProductView) {
	c.println(msgWelcome)
	for _, v := range views {
		price := formatAmount(v.Price) + "원"
		if v.Promotion != "" {
			c.println(fmt.Sprintf("- %s %s %s %s", v.Name, price, formatStock(v.PromotionStock), v.Promotion))
		}
		c.println(fmt.Sprintf("- %s %s %s", v.Name, price, formatStock(v.RegularStock)))
	}
}

func formatStock(n int) string {
	if n <= 0 {
		return "재고 없음"
	}
	return strconv.Itoa(n) + "개"
}

// PrintReceipt 输出收据，每行数量与金额包含赠品
func (c *Console) PrintReceipt(r *domain.Receipt) {
	c.println("\n==============W 편의점================")
	c.println("상품명\t\t수량\t금액")
	for _, l := range r.Lines {
		qty := l.PurchasedQuantity + l.BonusQuantity
		amount := l.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		c.println(fmt.Sprintf("%s\t\t%d \t%s", l.ProductName, qty, formatAmount(amount)))
	}
	if bonus := r.BonusLines(); len(bonus) > 0 {
		c.println("=============증\t정===============")
		for _, l := range bonus {
			c.println(fmt.Sprintf("%s\t\t%d", l.ProductName, l.BonusQuantity))
		}
	}
	c.println("====================================")
	c.println(fmt.Sprintf("총구매액\t\t%d\t%s", r.TotalQuantity, formatAmount(r.TotalAmount)))
	c.println(fmt.Sprintf("행사할인\t\t\t-%s", formatAmount(r.PromotionDiscount)))
	c.println(fmt.Sprintf("내실돈\t\t\t %s", formatAmount(r.AmountDue)))
}

// formatAmount 按千分位格式化为整数金额
func formatAmount(d decimal.Decimal) string {
	s := d.Round(0).Abs().String()
	var b strings.Builder
	if d.Round(0).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConsoleApp 是终端结账循环：展示库存、读取购买、确认、打印收据，直到顾客结束
type ConsoleApp struct {
	service *application.CheckoutService
	console *Console
}

func NewConsoleApp(service *application.CheckoutService, console *Console) *ConsoleApp {
	return &ConsoleApp{service: service, console: console}
}

// Run 输入结束（EOF）视为正常退出
func (a *ConsoleApp) Run(ctx context.Context) error {
	err := a.run(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (a *ConsoleApp) run(ctx context.Context) error {
	for {
		views, err := a.service.Products(ctx)
		if err != nil {
			return err
		}
		a.console.PrintProducts(views)

		receipt, err := a.purchase(ctx)
		if err != nil {
			return err
		}
		a.console.PrintReceipt(receipt)

		again, err := a.console.AskYesNo(msgContinue)
		if err != nil || !again {
			return err
		}
	}
}

// purchase 在商品不存在、库存不足或格式错误时提示并重新读取
func (a *ConsoleApp) purchase(ctx context.Context) (*domain.Receipt, error) {
	for {
		lines, err := a.console.ReadPurchase()
		if err != nil {
			return nil, err
		}
		receipt, err := a.service.Checkout(ctx, application.CheckoutRequest{Lines: lines}, a.console)
		switch {
		case err == nil:
			return receipt, nil
		case receipt != nil:
			// 部分行已经扣减，先打印收据再结束
			a.console.PrintReceipt(receipt)
			return nil, err
		case errors.Is(err, domain.ErrProductNotFound),
			errors.Is(err, domain.ErrOverstockRequested),
			errors.Is(err, domain.ErrInvalidQuantity):
			a.console.PrintError(err)
		default:
			return nil, err
		}
	}
}
