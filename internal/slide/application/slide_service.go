// Package application 滑动确认（slide-to-execute）的会话管理用例
package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	orderapp "github.com/wyfcoding/tradeexecution/internal/order/application"
	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
	"github.com/wyfcoding/tradeexecution/pkg/utils"
)

// PrepareSlideRequest 滑动确认的发起请求：待执行订单 + 安全选项
type PrepareSlideRequest struct {
	Order *orderapp.PlaceOrderRequest `json:"order"`
	// 客户端可主动要求最高安全档
	ForceHighSecurity bool `json:"force_high_security"`
}

// OrderSummaryDTO 待确认订单的摘要，供客户端在滑动前展示
// 价格与佣金为预估值，市价单按当前行情估算，实际成交以执行结果为准
type OrderSummaryDTO struct {
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	OrderType           string `json:"order_type"`
	Quantity            string `json:"quantity"`
	EstimatedPrice      string `json:"estimated_price"`
	EstimatedValue      string `json:"estimated_value"`
	EstimatedCommission string `json:"estimated_commission"`
}

// PrepareSlideResponse prepare 阶段返回给客户端的会话信息
type PrepareSlideResponse struct {
	SlideToken   string                    `json:"slide_token"`
	ExpiresAt    int64                     `json:"expires_at"`
	OrderValue   string                    `json:"order_value"`
	OrderSummary *OrderSummaryDTO          `json:"order_summary"`
	Requirements *domain.SlideRequirements `json:"requirements"`
	RiskWarnings []string                  `json:"risk_warnings,omitempty"`
}

// ExecuteSlideRequest 滑动执行请求
type ExecuteSlideRequest struct {
	SlideToken string            `json:"slide_token"`
	UserID     string            `json:"user_id"`
	SlideData  *domain.SlideData `json:"slide_data"`
}

// ExecuteSlideResponse 滑动执行结果
type ExecuteSlideResponse struct {
	Order         *orderapp.OrderDTO `json:"order"`
	GestureScore  float64            `json:"gesture_score"`
	SecurityScore float64            `json:"security_score"`
}

// SlideApplicationService 滑动会话管理器
// 会话主存在进程内存，Redis 仅作镜像；同一 token 的所有状态迁移
// 由 per-token 互斥锁串行化，并发滑动不会产生重复执行
type SlideApplicationService struct {
	orders     *orderapp.OrderApplicationService
	marketData orderdomain.MarketDataSource
	riskEngine domain.RiskEngine
	behavior   domain.BehaviorAnalyzer
	notifier   domain.NotificationPublisher
	checker    *domain.SecurityChecker
	gestures   *domain.GestureValidator

	store  domain.SlideOrderSweeper
	mirror domain.SlideOrderStore

	tokenTTL    time.Duration
	maxAttempts int

	// token -> *sync.Mutex
	locks sync.Map

	analytics *slideAnalytics
	now       func() time.Time
}

// NewSlideApplicationService 创建滑动会话管理器
func NewSlideApplicationService(
	orders *orderapp.OrderApplicationService,
	marketData orderdomain.MarketDataSource,
	riskEngine domain.RiskEngine,
	behavior domain.BehaviorAnalyzer,
	notifier domain.NotificationPublisher,
	checker *domain.SecurityChecker,
	store domain.SlideOrderSweeper,
	mirror domain.SlideOrderStore,
	analyticsCache *cache.RedisCache,
	tokenTTL time.Duration,
	maxAttempts int,
) *SlideApplicationService {
	return &SlideApplicationService{
		orders:      orders,
		marketData:  marketData,
		riskEngine:  riskEngine,
		behavior:    behavior,
		notifier:    notifier,
		checker:     checker,
		gestures:    domain.NewGestureValidator(),
		store:       store,
		mirror:      mirror,
		tokenTTL:    tokenTTL,
		maxAttempts: maxAttempts,
		analytics:   newSlideAnalytics(analyticsCache),
		now:         time.Now,
	}
}

// PrepareSlideOrder 发起滑动确认会话
// 用例流程：
// 1. 构造并校验订单（不执行）
// 2. 计算订单价值并做风险评估
// 3. 按价值与风险分层得出安全要求
// 4. 签发一次性 slideToken，双写主存与镜像
func (s *SlideApplicationService) PrepareSlideOrder(ctx context.Context, req *PrepareSlideRequest) (*PrepareSlideResponse, error) {
	defer logger.LogDuration(ctx, "Slide order prepared",
		"user_id", req.Order.UserID,
		"symbol", req.Order.Symbol,
	)()

	order, err := s.orders.PrepareOrder(ctx, req.Order)
	if err != nil {
		return nil, err
	}

	price, err := s.effectivePrice(ctx, order)
	if err != nil {
		return nil, err
	}
	orderValue := order.Quantity.Mul(price)

	risk, err := s.riskEngine.AssessOrderRisk(ctx, order, orderValue)
	if err != nil {
		return nil, fmt.Errorf("risk assessment failed: %w", err)
	}

	requirements := deriveRequirements(orderValue, risk, req.ForceHighSecurity)

	token, err := utils.SecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate slide token: %w", err)
	}

	now := s.now()
	slideOrder := &domain.SlideOrder{
		SlideToken:   token,
		UserID:       order.UserID,
		OrderData:    order,
		OrderValue:   orderValue,
		Risk:         risk,
		Requirements: requirements,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.tokenTTL),
		Status:       domain.SlideStatusPendingSlide,
	}

	if err := s.persist(ctx, slideOrder); err != nil {
		return nil, err
	}
	s.analytics.recordPrepared(ctx, order.UserID)

	logger.Info(ctx, "Slide session issued",
		"user_id", order.UserID,
		"symbol", order.Symbol,
		"order_value", orderValue.String(),
		"security_level", requirements.SecurityLevel,
		"risk_level", risk.RiskLevel,
	)

	return &PrepareSlideResponse{
		SlideToken:   token,
		ExpiresAt:    slideOrder.ExpiresAt.UnixMilli(),
		OrderValue:   orderValue.String(),
		OrderSummary: summarizeOrder(order, price, orderValue),
		Requirements: requirements,
		RiskWarnings: risk.Warnings,
	}, nil
}

// summarizeOrder 按预估价构造订单摘要，佣金与成交记录使用同一模型
func summarizeOrder(order *orderdomain.Order, price, orderValue decimal.Decimal) *OrderSummaryDTO {
	return &OrderSummaryDTO{
		Symbol:              order.Symbol,
		Side:                string(order.Side),
		OrderType:           string(order.Type),
		Quantity:            order.Quantity.String(),
		EstimatedPrice:      price.String(),
		EstimatedValue:      orderValue.String(),
		EstimatedCommission: orderdomain.CalculateCommission(order.Quantity, price).String(),
	}
}

// ExecuteSlideOrder 校验滑动手势与安全因子，通过后执行持有的订单
// 整个迁移链在 per-token 锁内完成：
// PENDING_SLIDE -> SLIDE_VALIDATED -> EXECUTING -> EXECUTED
func (s *SlideApplicationService) ExecuteSlideOrder(ctx context.Context, req *ExecuteSlideRequest) (*ExecuteSlideResponse, error) {
	defer logger.LogDuration(ctx, "Slide execution completed", "user_id", req.UserID)()

	mu := s.lockFor(req.SlideToken)
	mu.Lock()
	defer mu.Unlock()

	slideOrder, err := s.load(ctx, req.SlideToken)
	if err != nil {
		return nil, err
	}
	if slideOrder == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSlideNotFound, req.SlideToken)
	}

	now := s.now()
	if slideOrder.IsExpired(now) {
		s.discard(ctx, req.SlideToken)
		s.analytics.recordExpired(ctx, 1)
		return nil, domain.ErrSlideExpired
	}

	// 归属不匹配按安全违规处理，不暴露会话是否存在
	if slideOrder.UserID != req.UserID {
		logger.Warn(ctx, "Slide token ownership mismatch",
			"token_owner", slideOrder.UserID,
			"caller", req.UserID,
		)
		return nil, domain.ErrSecurityViolation
	}

	switch slideOrder.Status {
	case domain.SlideStatusPendingSlide:
	case domain.SlideStatusBlocked:
		return nil, domain.ErrMaxAttemptsExceeded
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSlideState, slideOrder.Status)
	}

	slideOrder.Attempts++
	if slideOrder.Attempts > s.maxAttempts {
		slideOrder.Status = domain.SlideStatusBlocked
		s.persistBestEffort(ctx, slideOrder)
		s.analytics.recordBlocked(ctx, slideOrder.UserID)
		logger.Warn(ctx, "Slide token blocked after max attempts",
			"user_id", slideOrder.UserID,
			"attempts", slideOrder.Attempts,
		)
		return nil, domain.ErrMaxAttemptsExceeded
	}

	if req.SlideData == nil || req.SlideData.Gesture == nil {
		s.persistBestEffort(ctx, slideOrder)
		s.analytics.recordRejected(ctx, slideOrder.UserID, "missing gesture")
		return nil, fmt.Errorf("%w: missing gesture data", domain.ErrGestureRejected)
	}

	behaviorScore, err := s.behavior.AnalyzeSlideBehavior(ctx, slideOrder.UserID, req.SlideData.Gesture)
	if err != nil {
		// 行为分析不可用时退回中性分，不让基础设施故障拦截交易
		logger.Warn(ctx, "Behavior analysis unavailable, using neutral score",
			"user_id", slideOrder.UserID,
			"error", err,
		)
		behaviorScore = 0.7
	}

	gestureResult := s.gestures.Validate(req.SlideData.Gesture, behaviorScore)
	slideOrder.GestureScore = gestureResult.Score
	if !gestureResult.Valid {
		s.persistBestEffort(ctx, slideOrder)
		s.analytics.recordRejected(ctx, slideOrder.UserID, gestureResult.Reason)
		logger.Warn(ctx, "Slide gesture rejected",
			"user_id", slideOrder.UserID,
			"reason", gestureResult.Reason,
			"score", gestureResult.Score,
			"attempt", slideOrder.Attempts,
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrGestureRejected, gestureResult.Reason)
	}

	securityResult := s.checker.Check(ctx, slideOrder, req.SlideData)
	slideOrder.SecurityScore = securityResult.Score
	if !securityResult.Passed {
		s.persistBestEffort(ctx, slideOrder)
		s.analytics.recordRejected(ctx, slideOrder.UserID, securityResult.Reason)
		logger.Warn(ctx, "Slide security check failed",
			"user_id", slideOrder.UserID,
			"reason", securityResult.Reason,
			"score", securityResult.Score,
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrSecurityCheckFailed, securityResult.Reason)
	}

	validatedAt := s.now()
	slideOrder.Status = domain.SlideStatusSlideValidated
	slideOrder.ValidatedAt = &validatedAt
	s.persistBestEffort(ctx, slideOrder)

	decision, err := s.riskEngine.FinalRiskCheck(ctx, slideOrder.UserID, slideOrder.OrderData)
	if err != nil {
		// 复核失败是基础设施错误，会话回到待滑动态供重试；本次尝试照常计数
		slideOrder.Status = domain.SlideStatusPendingSlide
		s.persistBestEffort(ctx, slideOrder)
		return nil, fmt.Errorf("final risk check failed: %w", err)
	}
	if !decision.Approved {
		slideOrder.Status = domain.SlideStatusRiskRejected
		s.persistBestEffort(ctx, slideOrder)
		s.analytics.recordRejected(ctx, slideOrder.UserID, "risk rejected")
		s.notifyAsync(ctx, slideOrder.UserID, "slide_order_risk_rejected", map[string]interface{}{
			"symbol":  slideOrder.OrderData.Symbol,
			"reasons": decision.Reasons,
		})
		return nil, fmt.Errorf("%w: %s", domain.ErrRiskRejected, strings.Join(decision.Reasons, "; "))
	}

	slideOrder.Status = domain.SlideStatusExecuting
	s.persistBestEffort(ctx, slideOrder)

	dto, err := s.orders.ExecuteHeldOrder(ctx, slideOrder.OrderData)
	if err != nil {
		// 执行失败回退到待滑动态，客户端可在 TTL 内重新滑动；尝试照常计数
		slideOrder.Status = domain.SlideStatusPendingSlide
		s.persistBestEffort(ctx, slideOrder)
		return nil, err
	}

	executedAt := s.now()
	slideOrder.Status = domain.SlideStatusExecuted
	slideOrder.ExecutedAt = &executedAt
	slideOrder.ExecutedOrderID = dto.OrderID

	if err := s.behavior.RecordSlideBehavior(ctx, slideOrder.UserID, req.SlideData.Gesture); err != nil {
		logger.Warn(ctx, "Failed to record slide behavior sample",
			"user_id", slideOrder.UserID,
			"error", err,
		)
	}
	s.analytics.recordExecuted(ctx, slideOrder.UserID, gestureResult.Score, req.SlideData.Gesture.Duration)
	s.notifyAsync(ctx, slideOrder.UserID, "slide_order_executed", map[string]interface{}{
		"order_id": dto.OrderID,
		"symbol":   slideOrder.OrderData.Symbol,
		"status":   dto.Status,
	})

	// 会话一次性使用，执行后立即销毁
	s.discard(ctx, req.SlideToken)

	logger.Info(ctx, "Slide order executed",
		"user_id", slideOrder.UserID,
		"order_id", dto.OrderID,
		"gesture_score", gestureResult.Score,
		"security_score", securityResult.Score,
	)

	return &ExecuteSlideResponse{
		Order:         dto,
		GestureScore:  gestureResult.Score,
		SecurityScore: securityResult.Score,
	}, nil
}

// CancelSlideOrder 取消尚未滑动的会话
// 取消后会话即刻销毁，重复取消得到 not-found 的状态错误
func (s *SlideApplicationService) CancelSlideOrder(ctx context.Context, token, userID string) error {
	mu := s.lockFor(token)
	mu.Lock()
	defer mu.Unlock()

	slideOrder, err := s.load(ctx, token)
	if err != nil {
		return err
	}
	if slideOrder == nil {
		return fmt.Errorf("%w: %s", domain.ErrSlideNotFound, token)
	}
	if slideOrder.UserID != userID {
		return domain.ErrSecurityViolation
	}
	if slideOrder.Status != domain.SlideStatusPendingSlide {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSlideState, slideOrder.Status)
	}

	slideOrder.Status = domain.SlideStatusCancelled
	s.discard(ctx, token)
	s.analytics.recordCancelled(ctx, userID)

	logger.Info(ctx, "Slide session cancelled", "user_id", userID)
	return nil
}

// GetSlideAnalytics 返回滑动确认的聚合统计，userID 非空时附带该用户的明细
func (s *SlideApplicationService) GetSlideAnalytics(ctx context.Context, userID string) *SlideAnalyticsDTO {
	return s.analytics.snapshot(userID)
}

// SweepExpired 清理过期会话，由定时任务周期调用
func (s *SlideApplicationService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired slide sessions: %w", err)
	}
	for _, order := range expired {
		if err := s.mirror.Delete(ctx, order.SlideToken); err != nil {
			logger.Warn(ctx, "Failed to delete mirrored slide session",
				"token", order.SlideToken,
				"error", err,
			)
		}
		s.locks.Delete(order.SlideToken)
	}
	if len(expired) > 0 {
		s.analytics.recordExpired(ctx, len(expired))
		logger.Info(ctx, "Expired slide sessions swept", "count", len(expired))
	}
	return len(expired), nil
}

// ActiveSessions 当前在存会话数，用于指标上报
func (s *SlideApplicationService) ActiveSessions() int {
	type lener interface{ Len() int }
	if l, ok := s.store.(lener); ok {
		return l.Len()
	}
	return 0
}

// effectivePrice 估值用价格：有限价用限价，否则取当前市场价
func (s *SlideApplicationService) effectivePrice(ctx context.Context, order *orderdomain.Order) (decimal.Decimal, error) {
	if order.Price.GreaterThan(decimal.Zero) {
		return order.Price, nil
	}
	current, err := s.marketData.GetCurrentPrice(ctx, order.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch market price for %s: %w", order.Symbol, err)
	}
	return current, nil
}

// deriveRequirements 按订单价值与风险评估分层得出安全要求
func deriveRequirements(orderValue decimal.Decimal, risk *domain.RiskAssessment, forceHigh bool) *domain.SlideRequirements {
	req := &domain.SlideRequirements{
		SecurityLevel:   domain.SecurityLevelLow,
		SlideComplexity: domain.SlideComplexitySimple,
	}

	if orderValue.GreaterThan(decimal.NewFromInt(25000)) {
		req.SecurityLevel = domain.SecurityLevelMedium
		req.Biometric = true
		req.SlideComplexity = domain.SlideComplexityMedium
	}
	if orderValue.GreaterThan(decimal.NewFromInt(100000)) {
		req.SecurityLevel = domain.SecurityLevelHigh
		req.Biometric = true
		req.LocationVerification = true
		req.SlideComplexity = domain.SlideComplexityComplex
	}

	if risk.RiskLevel == domain.RiskLevelHigh {
		req.SecurityLevel = domain.SecurityLevelHigh
		req.Biometric = true
		req.AdditionalConfirmation = true
	}
	if risk.IsOptions {
		req.Biometric = true
		req.AdditionalConfirmation = true
	}
	if risk.IsMargin {
		if req.SecurityLevel == domain.SecurityLevelLow {
			req.SecurityLevel = domain.SecurityLevelMedium
		}
		req.DeviceVerification = true
	}

	if forceHigh {
		req.SecurityLevel = domain.SecurityLevelHigh
		req.Biometric = true
		req.DeviceVerification = true
		req.LocationVerification = true
		req.AdditionalConfirmation = true
		req.SlideComplexity = domain.SlideComplexityComplex
	}

	return req
}

// load 先查内存主存，未命中再查 Redis 镜像（跨实例路由或进程重启场景）
func (s *SlideApplicationService) load(ctx context.Context, token string) (*domain.SlideOrder, error) {
	slideOrder, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load slide session: %w", err)
	}
	if slideOrder != nil {
		return slideOrder, nil
	}

	slideOrder, err = s.mirror.Get(ctx, token)
	if err != nil {
		logger.Warn(ctx, "Slide mirror lookup failed", "error", err)
		return nil, nil
	}
	if slideOrder != nil {
		// 回填主存，后续操作不再穿透
		if err := s.store.Save(ctx, slideOrder, time.Until(slideOrder.ExpiresAt)); err != nil {
			return nil, fmt.Errorf("restore slide session: %w", err)
		}
	}
	return slideOrder, nil
}

// persist 双写主存与镜像，主存失败即失败，镜像失败仅告警
func (s *SlideApplicationService) persist(ctx context.Context, order *domain.SlideOrder) error {
	ttl := time.Until(order.ExpiresAt)
	if err := s.store.Save(ctx, order, ttl); err != nil {
		return fmt.Errorf("save slide session: %w", err)
	}
	if err := s.mirror.Save(ctx, order, ttl); err != nil {
		logger.Warn(ctx, "Failed to mirror slide session", "error", err)
	}
	return nil
}

func (s *SlideApplicationService) persistBestEffort(ctx context.Context, order *domain.SlideOrder) {
	if err := s.persist(ctx, order); err != nil {
		logger.Error(ctx, "Failed to persist slide session", "error", err)
	}
}

func (s *SlideApplicationService) discard(ctx context.Context, token string) {
	if err := s.store.Delete(ctx, token); err != nil {
		logger.Warn(ctx, "Failed to delete slide session", "error", err)
	}
	if err := s.mirror.Delete(ctx, token); err != nil {
		logger.Warn(ctx, "Failed to delete mirrored slide session", "error", err)
	}
	s.locks.Delete(token)
}

func (s *SlideApplicationService) lockFor(token string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(token, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// notifyAsync 通知走 fire-and-forget，不阻塞也不影响用例结果
func (s *SlideApplicationService) notifyAsync(ctx context.Context, userID, eventType string, payload interface{}) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.notifier.SendNotification(sendCtx, userID, eventType, payload); err != nil {
			logger.Warn(sendCtx, "Failed to send slide notification",
				"user_id", userID,
				"event_type", eventType,
				"error", err,
			)
		}
	}()
}
