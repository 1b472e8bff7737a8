package interfaces

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

func TestParsePurchaseInput(t *testing.T) {
	lines, err := ParsePurchaseInput("[콜라-10], [사이다-3],[에너지-바-2]")
	require.NoError(t, err)
	assert.Equal(t, []application.LineRequest{
		{ProductName: "콜라", Quantity: 10},
		{ProductName: "사이다", Quantity: 3},
		{ProductName: "에너지-바", Quantity: 2},
	}, lines)

	for _, bad := range []string{"", "콜라-1", "[콜라-]", "[콜라-0]", "[콜라-a]", "[콜라-1],", "[-1]"} {
		_, err := ParsePurchaseInput(bad)
		assert.ErrorIs(t, err, ErrInvalidInputFormat, bad)
	}
}

func TestConsoleConfirmReprompts(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("maybe\ny\n"), &out)

	ok, err := c.Confirm(context.Background(), port.Question{Kind: port.QuestionPayFullPrice, ProductName: "콜라", Quantity: 4})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "현재 콜라 4개는 프로모션 할인이 적용되지 않습니다. 정가로 구매하시겠습니까? (Y/N)")
	assert.Contains(t, out.String(), msgInvalidAnswer)

	out.Reset()
	c = NewConsole(strings.NewReader("N\n"), &out)
	ok, err = c.Confirm(context.Background(), port.Question{Kind: port.QuestionAddForBonus, ProductName: "오렌지주스", Quantity: 1, BonusGain: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "현재 오렌지주스은(는) 1개를 더 가져오면 1개를 무료로 받을 수 있습니다.")

	_, err = NewConsole(strings.NewReader(""), io.Discard).AskYesNo("?")
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.Wrap(domain.ErrProductNotFound, "라면"), msgNotFound},
		{errors.Wrap(domain.ErrOverstockRequested, "콜라"), msgOverstock},
		{errors.Wrap(ErrInvalidInputFormat, "x"), msgInvalidFormat},
		{errors.New("boom"), "[ERROR] boom"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		NewConsole(strings.NewReader(""), &out).PrintError(tt.err)
		assert.Equal(t, tt.want+"\n", out.String())
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", formatAmount(decimal.Zero))
	assert.Equal(t, "500", formatAmount(decimal.NewFromInt(500)))
	assert.Equal(t, "1,000", formatAmount(decimal.NewFromInt(1000)))
	assert.Equal(t, "1,234,567", formatAmount(decimal.NewFromInt(1234567)))
	assert.Equal(t, "-12,000", formatAmount(decimal.NewFromInt(-12000)))
}

func TestPrintProducts(t *testing.T) {
	var out bytes.Buffer
	NewConsole(strings.NewReader(""), &out).PrintProducts([]application.ProductView{
		{Name: "콜라", Price: decimal.NewFromInt(1000), RegularStock: 10, PromotionStock: 0, Promotion: "탄산2+1"},
		{Name: "물", Price: decimal.NewFromInt(500), RegularStock: 10},
	})
	assert.Contains(t, out.String(), "- 콜라 1,000원 재고 없음 탄산2+1\n- 콜라 1,000원 10개\n- 물 500원 10개\n")
}

func TestConsoleAppSession(t *testing.T) {
	svc, _ := newTestService(t)
	input := strings.Join([]string{
		"콜라 두 개",
		"[라면-1]",
		"[물-6]",
		// 促销库存 3，超出 2 个按原价
		"[콜라-5]",
		"Y",
		// 继续购物
		"Y",
		"[물-1]",
		"N",
	}, "\n") + "\n"

	var out bytes.Buffer
	err := NewConsoleApp(svc, NewConsole(strings.NewReader(input), &out)).Run(context.Background())
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, msgInvalidFormat)
	assert.Contains(t, text, msgNotFound)
	assert.Contains(t, text, msgOverstock)
	assert.Contains(t, text, "현재 콜라 2개는 프로모션 할인이 적용되지 않습니다.")
	assert.Contains(t, text, "콜라\t\t5 \t5,000")
	assert.Contains(t, text, "내실돈\t\t\t 5,000")
	// 第二轮展示的是扣减后的库存
	assert.Contains(t, text, "- 콜라 1,000원 재고 없음 탄산2+1")
	assert.Contains(t, text, "- 콜라 1,000원 8개")
	assert.Contains(t, text, "물\t\t1 \t500")
	assert.Equal(t, 2, strings.Count(text, msgContinue))
}

func TestConsoleAppStopsOnEOF(t *testing.T) {
	svc, _ := newTestService(t)
	err := NewConsoleApp(svc, NewConsole(strings.NewReader("[콜라-5]\n"), io.Discard)).Run(context.Background())
	assert.NoError(t, err)
}
