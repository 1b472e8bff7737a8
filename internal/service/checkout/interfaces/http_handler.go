package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// CheckoutHandler 封装了结账服务的 HTTP 处理器
type CheckoutHandler struct {
	service *application.CheckoutService
	engine  *application.AllocationEngine
}

// NewCheckoutHandler 创建一个新的 HTTP 处理器实例
func NewCheckoutHandler(service *application.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{service: service, engine: service.Engine()}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /products", h.handleProducts)
	mux.HandleFunc("POST /allocations/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /allocations/commit", h.handleCommit)
	mux.HandleFunc("POST /checkout", h.handleCheckout)
}

// LineBody 是单个购买行及其已知答案
type LineBody struct {
	application.LineRequest
	Answers application.Answers `json:"answers,omitempty"`
}

// CheckoutBody 一次结账请求
type CheckoutBody struct {
	Lines []LineBody `json:"lines"`
}

// decisionResponse 是 409 响应体
type decisionResponse struct {
	Error    string         `json:"error"`
	Question *port.Question `json:"question"`
}

// partialResponse 扣减中途失败时返回已完成部分的收据
type partialResponse struct {
	Error   string          `json:"error"`
	Receipt *domain.Receipt `json:"receipt"`
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func (h *CheckoutHandler) handleProducts(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	views, err := h.service.Products(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *CheckoutHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var body LineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := h.engine.Evaluate(ctx, body.LineRequest, body.Answers)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *CheckoutHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var body LineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := h.engine.Commit(ctx, body.LineRequest, body.Answers)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleCheckout 先用已知答案评估每一行，有未回答的问题时直接 409，不扣减任何库存
func (h *CheckoutHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var body CheckoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req := application.CheckoutRequest{}
	answers := answerBook{}
	for _, line := range body.Lines {
		req.Lines = append(req.Lines, line.LineRequest)
		if answers[line.ProductName] == nil {
			answers[line.ProductName] = application.Answers{}
		}
		for kind, v := range line.Answers {
			answers[line.ProductName][kind] = v
		}
	}

	// 缺少答案时在扣减任何库存之前返回 409
	receipt, err := h.service.Checkout(ctx, req, answers)
	switch {
	case err != nil && receipt != nil:
		logger.Ctx(ctx).Error().Err(err).Str("receipt_id", receipt.ID).Msg("checkout partially completed")
		writeJSON(w, http.StatusInternalServerError, partialResponse{Error: err.Error(), Receipt: receipt})
	case err != nil:
		writeError(ctx, w, err)
	default:
		writeJSON(w, http.StatusOK, receipt)
	}
}

// answerBook 按商品名给出预先提交的答案，缺少答案时返回 DecisionRequiredError
type answerBook map[string]application.Answers

func (b answerBook) Confirm(ctx context.Context, q port.Question) (bool, error) {
	if v, ok := b[q.ProductName][q.Kind]; ok {
		return v, nil
	}
	return false, &application.DecisionRequiredError{Question: q}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var decision *application.DecisionRequiredError
	if errors.As(err, &decision) {
		writeJSON(w, http.StatusConflict, decisionResponse{Error: err.Error(), Question: &decision.Question})
		return
	}

	var statusCode int
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrOverstockRequested):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	default:
		statusCode = http.StatusInternalServerError
		logger.Ctx(ctx).Error().Err(err).Msg("checkout request failed")
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
