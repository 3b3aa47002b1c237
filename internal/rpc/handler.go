package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paygate/internal/merchant"
	"paygate/internal/observability"
)

// Handler serves the processor webhook: one fixed POST path carrying the
// RPC envelope. Credentials are checked before the envelope is parsed.
type Handler struct {
	auth    *merchant.CredentialValidator
	service *merchant.Service
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHandler constructs the webhook handler. Metrics may be nil.
func NewHandler(auth *merchant.CredentialValidator, service *merchant.Service, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, service: service, metrics: metrics, logger: logger}
}

// Register mounts the webhook route.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/payments/merchant", h.Handle)
}

// Handle processes one webhook call. Protocol-level failures (including
// authorization) are answered with HTTP 200 and an error envelope, as
// the processor expects.
func (h *Handler) Handle(c *gin.Context) {
	start := time.Now()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respond(c, "parse", start, Response{Error: errorBody(merchant.ErrParse)})
		return
	}

	if err := h.auth.Validate(c.GetHeader("Authorization"), body); err != nil {
		h.logger.Warn("webhook rejected", zap.String("remote", c.ClientIP()))
		h.respond(c, "auth", start, Response{Error: errorBody(err)})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.respond(c, "parse", start, Response{Error: errorBody(merchant.ErrParse)})
		return
	}

	result, err := h.dispatch(c.Request.Context(), req)
	resp := Response{ID: req.ID}
	if err != nil {
		perr := merchant.AsProtocolError(err)
		h.logger.Warn("rpc error",
			zap.String("method", req.Method),
			zap.Int("code", perr.Code),
		)
		resp.Error = &ErrorBody{Code: perr.Code, Message: perr.Message}
	} else {
		resp.Result = result
	}
	h.respond(c, req.Method, start, resp)
}

func (h *Handler) respond(c *gin.Context, method string, start time.Time, resp Response) {
	var code int
	if resp.Error != nil {
		code = resp.Error.Code
	}
	h.metrics.ObserveRPC(method, code, time.Since(start))
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case "CheckPerformTransaction":
		var p checkPerformParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.CheckPerformTransaction(ctx, p.Account, p.Amount)

	case "CreateTransaction":
		var p createParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.CreateTransaction(ctx, p.ID, p.Account, p.Amount, p.Time)

	case "PerformTransaction":
		var p transactionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.PerformTransaction(ctx, p.ID)

	case "CancelTransaction":
		var p cancelParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.CancelTransaction(ctx, p.ID, p.Reason)

	case "CheckTransaction":
		var p transactionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.CheckTransaction(ctx, p.ID)

	case "GetStatement":
		var p statementParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, merchant.ErrParse
		}
		return h.service.GetStatement(ctx, p.From, p.To)
	}
	return nil, merchant.ErrMethodNotFound
}
