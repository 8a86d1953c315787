// Package interfaces 滑动确认的 HTTP 接入层
package interfaces

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/internal/slide/application"
	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/metrics"
	"github.com/wyfcoding/tradeexecution/pkg/response"
)

// SlideHandler 滑动确认 HTTP 处理器
type SlideHandler struct {
	service *application.SlideApplicationService
	metrics *metrics.Metrics
}

// NewSlideHandler 创建滑动确认处理器
func NewSlideHandler(service *application.SlideApplicationService, m *metrics.Metrics) *SlideHandler {
	return &SlideHandler{service: service, metrics: m}
}

// RegisterRoutes 注册滑动确认路由
func (h *SlideHandler) RegisterRoutes(r *gin.RouterGroup) {
	slide := r.Group("/slide")
	{
		slide.POST("/prepare", h.PrepareSlideOrder)
		slide.POST("/execute", h.ExecuteSlideOrder)
		slide.POST("/cancel", h.CancelSlideOrder)
		slide.GET("/analytics", h.GetSlideAnalytics)
	}
}

// PrepareSlideOrder 发起滑动确认会话
func (h *SlideHandler) PrepareSlideOrder(c *gin.Context) {
	var req application.PrepareSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Order == nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if id := c.GetHeader("X-User-ID"); id != "" {
		req.Order.UserID = id
	}

	resp, err := h.service.PrepareSlideOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.metrics.SlidePreparedTotal.Inc()
	h.metrics.SlideSessionsActive.Set(float64(h.service.ActiveSessions()))
	response.Success(c, resp)
}

// ExecuteSlideOrder 提交滑动手势并执行订单
func (h *SlideHandler) ExecuteSlideOrder(c *gin.Context) {
	var req application.ExecuteSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SlideToken == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if id := c.GetHeader("X-User-ID"); id != "" {
		req.UserID = id
	}

	start := time.Now()
	resp, err := h.service.ExecuteSlideOrder(c.Request.Context(), &req)
	h.metrics.SlideExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.recordRejection(err)
		h.respondError(c, err)
		return
	}

	h.metrics.SlideExecutedTotal.Inc()
	h.metrics.SlideGestureScore.Observe(resp.GestureScore)
	h.metrics.SlideSessionsActive.Set(float64(h.service.ActiveSessions()))
	response.Success(c, resp)
}

// CancelSlideOrder 取消尚未滑动的会话
func (h *SlideHandler) CancelSlideOrder(c *gin.Context) {
	var req struct {
		SlideToken string `json:"slide_token"`
		UserID     string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SlideToken == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if id := c.GetHeader("X-User-ID"); id != "" {
		req.UserID = id
	}

	if err := h.service.CancelSlideOrder(c.Request.Context(), req.SlideToken, req.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.SlideSessionsActive.Set(float64(h.service.ActiveSessions()))
	response.Success(c, gin.H{"cancelled": true})
}

// GetSlideAnalytics 滑动确认聚合统计，携带身份时附带该用户明细
func (h *SlideHandler) GetSlideAnalytics(c *gin.Context) {
	userID := c.Query("user_id")
	if id := c.GetHeader("X-User-ID"); id != "" {
		userID = id
	}
	response.Success(c, h.service.GetSlideAnalytics(c.Request.Context(), userID))
}

// recordRejection 按拒绝类别上报指标
func (h *SlideHandler) recordRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrGestureRejected):
		h.metrics.SlideRejectedTotal.WithLabelValues("gesture").Inc()
	case errors.Is(err, domain.ErrSecurityCheckFailed):
		h.metrics.SlideRejectedTotal.WithLabelValues("security").Inc()
	case errors.Is(err, domain.ErrRiskRejected):
		h.metrics.SlideRejectedTotal.WithLabelValues("risk").Inc()
	case errors.Is(err, domain.ErrMaxAttemptsExceeded):
		h.metrics.SlideRejectedTotal.WithLabelValues("blocked").Inc()
	case errors.Is(err, domain.ErrSlideExpired):
		h.metrics.SlideRejectedTotal.WithLabelValues("expired").Inc()
	case errors.Is(err, domain.ErrSecurityViolation):
		h.metrics.SlideSecurityViolations.Inc()
	}
}

// respondError 按错误类别映射 HTTP 状态码
// 400 参数问题 / 403 安全违规 / 404 未找到 / 409 状态冲突 / 422 校验拒绝 / 500 其他
func (h *SlideHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orderdomain.ErrValidation):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, domain.ErrSecurityViolation):
		response.ErrorWithStatus(c, http.StatusForbidden, "security violation", nil)
	case errors.Is(err, domain.ErrSlideNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "slide session not found", nil)
	case errors.Is(err, domain.ErrSlideExpired),
		errors.Is(err, domain.ErrInvalidSlideState),
		errors.Is(err, domain.ErrMaxAttemptsExceeded):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, domain.ErrGestureRejected),
		errors.Is(err, domain.ErrSecurityCheckFailed),
		errors.Is(err, domain.ErrRiskRejected):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}
