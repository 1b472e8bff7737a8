package interfaces

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout/application"
	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// 消息类型
const (
	MessageCheckout = "checkout"
	MessageAnswer   = "answer"
	MessageQuestion = "question"
	MessageReceipt  = "receipt"
	MessageError    = "error"
)

// WSMessage 是 websocket 上收发的消息
type WSMessage struct {
	Type     string                    `json:"type"`
	Lines    []application.LineRequest `json:"lines,omitempty"`
	Accepted *bool                     `json:"accepted,omitempty"`
	Question *port.Question            `json:"question,omitempty"`
	Receipt  *domain.Receipt           `json:"receipt,omitempty"`
	Error    string                    `json:"error,omitempty"`
	Code     string                    `json:"code,omitempty"`
}

var errUnexpectedMessage = errors.New("unexpected message")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 允许所有跨域
		return true
	},
}

// WSCheckoutHandler 提供交互式结账：客户端发送 checkout，服务端逐个推送问题并读取答案，最后推送收据
type WSCheckoutHandler struct {
	service *application.CheckoutService
}

func NewWSCheckoutHandler(service *application.CheckoutService) *WSCheckoutHandler {
	return &WSCheckoutHandler{service: service}
}

func (h *WSCheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/checkout", h.serveWs)
}

func (h *WSCheckoutHandler) serveWs(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	confirmer := &wsConfirmer{conn: conn}
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Ctx(ctx).Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if msg.Type != MessageCheckout {
			if err := conn.WriteJSON(errorMessage(errors.Wrapf(errUnexpectedMessage, "got %q", msg.Type))); err != nil {
				return
			}
			continue
		}

		receipt, err := h.service.Checkout(ctx, application.CheckoutRequest{Lines: msg.Lines}, confirmer)
		if err != nil {
			if receipt != nil && !confirmer.broken {
				if err := conn.WriteJSON(WSMessage{Type: MessageReceipt, Receipt: receipt}); err != nil {
					return
				}
			}
			if confirmer.broken {
				return
			}
			if err := conn.WriteJSON(errorMessage(err)); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(WSMessage{Type: MessageReceipt, Receipt: receipt}); err != nil {
			return
		}
	}
}

// wsConfirmer 通过连接推送问题并同步等待回答
type wsConfirmer struct {
	conn   *websocket.Conn
	broken bool
}

func (c *wsConfirmer) Confirm(ctx context.Context, q port.Question) (bool, error) {
	if err := c.conn.WriteJSON(WSMessage{Type: MessageQuestion, Question: &q}); err != nil {
		c.broken = true
		return false, errors.Wrap(err, "push question")
	}
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.broken = true
			return false, errors.Wrap(err, "read answer")
		}
		if msg.Type == MessageAnswer && msg.Accepted != nil {
			return *msg.Accepted, nil
		}
		// 回答之前的其它消息一律拒绝，重新等待
		if err := c.conn.WriteJSON(errorMessage(errors.Wrapf(errUnexpectedMessage, "expected answer, got %q", msg.Type))); err != nil {
			c.broken = true
			return false, errors.Wrap(err, "push error")
		}
	}
}

func errorMessage(err error) WSMessage {
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		code = "PRODUCT_NOT_FOUND"
	case errors.Is(err, domain.ErrOverstockRequested):
		code = "OVERSTOCK"
	case errors.Is(err, domain.ErrInvalidQuantity):
		code = "INVALID_QUANTITY"
	case errors.Is(err, errUnexpectedMessage):
		code = "UNEXPECTED_MESSAGE"
	}
	return WSMessage{Type: MessageError, Error: err.Error(), Code: code}
}
