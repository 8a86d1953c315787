// Package interfaces 订单服务的 HTTP 接入层
package interfaces

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/tradeexecution/internal/order/application"
	"github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/pkg/metrics"
	"github.com/wyfcoding/tradeexecution/pkg/response"
)

// OrderHandler 订单 HTTP 处理器
type OrderHandler struct {
	service *application.OrderApplicationService
	metrics *metrics.Metrics
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(service *application.OrderApplicationService, m *metrics.Metrics) *OrderHandler {
	return &OrderHandler{service: service, metrics: m}
}

// RegisterRoutes 注册订单路由
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("/validate", h.ValidateOrder)
		orders.POST("", h.PlaceOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/evaluate", h.EvaluateOrder)
	}
}

// ValidateOrder 仅校验订单参数，不落库不执行
func (h *OrderHandler) ValidateOrder(c *gin.Context) {
	var req application.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	req.UserID = callerID(c, req.UserID)

	result, err := h.service.ValidateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, result)
}

// PlaceOrder 直接下单（低风险路径）
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req application.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	req.UserID = callerID(c, req.UserID)

	order, err := h.service.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.metrics.OrdersRejectedTotal.Inc()
		}
		h.respondError(c, err)
		return
	}

	h.metrics.OrdersPlacedTotal.WithLabelValues(order.OrderType).Inc()
	h.metrics.TradesExecutedTotal.Add(float64(len(order.Trades)))
	response.Success(c, order)
}

// ListOrders 分页查询当前用户的订单
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := callerID(c, c.Query("user_id"))
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing user identity", nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	list, err := h.service.ListOrders(c.Request.Context(), userID, c.Query("status"), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, list)
}

// GetOrder 查询订单详情（含成交明细）
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")
	userID := callerID(c, "")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing user identity", nil)
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, order)
}

// EvaluateOrder 对挂起订单做一次再评估
func (h *OrderHandler) EvaluateOrder(c *gin.Context) {
	order, err := h.service.EvaluateOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, order)
}

// respondError 按错误类别映射 HTTP 状态码
func (h *OrderHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, domain.ErrOrderNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrUnauthorized):
		response.ErrorWithStatus(c, http.StatusForbidden, "access denied", nil)
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}

// callerID 调用方身份：网关注入的 X-User-ID 优先于请求体
func callerID(c *gin.Context, fallback string) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return fallback
}
