package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/infrastructure"
	"convenience/internal/service/checkout/port"
)

var today = time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)

func fixedClock() time.Time { return today }

// newTestService 콜라: 普通 10，促销 3（2+1）；물: 普通 5
func newTestService(t *testing.T) (*application.CheckoutService, *infrastructure.MemoryProductRepository) {
	t.Helper()
	promo, err := domain.NewPromotion("탄산2+1", 2, 1,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), time.Date(2024, 12, 31, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	cola, err := domain.NewProduct("콜라", decimal.NewFromInt(1000), 10, 3, promo)
	require.NoError(t, err)
	water, err := domain.NewProduct("물", decimal.NewFromInt(500), 5, 0, nil)
	require.NoError(t, err)

	repo := infrastructure.NewMemoryProductRepository([]*domain.Product{cola, water})
	engine := application.NewAllocationEngine(repo, application.WithClock(fixedClock))
	return application.NewCheckoutService(engine, repo, nil, otel.Tracer("test")), repo
}

func newTestServer(t *testing.T) (*httptest.Server, *infrastructure.MemoryProductRepository) {
	t.Helper()
	svc, repo := newTestService(t)
	mux := http.NewServeMux()
	NewCheckoutHandler(svc).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, repo
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetProducts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	views := decode[[]application.ProductView](t, resp)
	require.Len(t, views, 2)
	assert.Equal(t, "콜라", views[0].Name)
	assert.Equal(t, 3, views[0].PromotionStock)
	assert.True(t, views[0].PromotionActive)
}

func TestEvaluateReturnsPendingQuestion(t *testing.T) {
	srv, repo := newTestServer(t)

	resp := postJSON(t, srv.URL+"/allocations/evaluate", LineBody{
		LineRequest: application.LineRequest{ProductName: "콜라", Quantity: 5},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[application.Plan](t, resp)
	assert.Equal(t, application.LineDecisionRequired, plan.Status)
	require.NotNil(t, plan.Question)
	assert.Equal(t, port.QuestionPayFullPrice, plan.Question.Kind)
	assert.Equal(t, 2, plan.Question.Quantity)

	p, err := repo.FindByName(context.Background(), "콜라")
	require.NoError(t, err)
	assert.Equal(t, 3, p.PromotionStock, "evaluate never mutates")
}

func TestCommitTwoPhase(t *testing.T) {
	srv, repo := newTestServer(t)
	line := application.LineRequest{ProductName: "콜라", Quantity: 5}

	resp := postJSON(t, srv.URL+"/allocations/commit", LineBody{LineRequest: line})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	pending := decode[decisionResponse](t, resp)
	require.NotNil(t, pending.Question)
	assert.Equal(t, port.QuestionPayFullPrice, pending.Question.Kind)

	resp = postJSON(t, srv.URL+"/allocations/commit", LineBody{
		LineRequest: line,
		Answers:     application.Answers{port.QuestionPayFullPrice: true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[application.Plan](t, resp)
	assert.Equal(t, application.LineCompleted, plan.Status)
	require.NotNil(t, plan.Result)
	assert.Equal(t, 3, plan.Result.PromoUsed)
	assert.Equal(t, 2, plan.Result.RegularUsed)

	p, err := repo.FindByName(context.Background(), "콜라")
	require.NoError(t, err)
	assert.Equal(t, 0, p.PromotionStock)
	assert.Equal(t, 8, p.RegularStock)
}

func TestErrorStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		line application.LineRequest
		want int
	}{
		{"not found", application.LineRequest{ProductName: "라면", Quantity: 1}, http.StatusNotFound},
		{"overstock", application.LineRequest{ProductName: "물", Quantity: 6}, http.StatusUnprocessableEntity},
		{"invalid quantity", application.LineRequest{ProductName: "물", Quantity: 0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/allocations/commit", LineBody{LineRequest: tt.line})
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp, err := http.Post(srv.URL+"/allocations/evaluate", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)

	body := CheckoutBody{Lines: []LineBody{
		{LineRequest: application.LineRequest{ProductName: "물", Quantity: 2}},
		{LineRequest: application.LineRequest{ProductName: "콜라", Quantity: 5}},
	}}
	resp := postJSON(t, srv.URL+"/checkout", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	pending := decode[decisionResponse](t, resp)
	assert.Equal(t, "콜라", pending.Question.ProductName)

	water, err := repo.FindByName(context.Background(), "물")
	require.NoError(t, err)
	assert.Equal(t, 5, water.RegularStock, "no line is committed while a question is open")

	body.Lines[1].Answers = application.Answers{port.QuestionPayFullPrice: false}
	resp = postJSON(t, srv.URL+"/checkout", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[domain.Receipt](t, resp)
	require.Len(t, receipt.Lines, 2)
	assert.Equal(t, 3, receipt.Lines[1].PromoUsed, "declined overflow is capped to promotion stock")
	assert.Equal(t, 0, receipt.Lines[1].BonusQuantity, "no promotion stock left for the bonus unit")
}
