package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
)

// RiskEngine 风险引擎
type RiskEngine interface {
	// AssessOrderRisk prepare 阶段的风险评估
	AssessOrderRisk(ctx context.Context, order *orderdomain.Order, orderValue decimal.Decimal) (*RiskAssessment, error)
	// FinalRiskCheck 手势通过后、执行前以最新价格复核
	FinalRiskCheck(ctx context.Context, userID string, order *orderdomain.Order) (*RiskDecision, error)
}

// DeviceVerifier 设备指纹校验
type DeviceVerifier interface {
	VerifyDevice(ctx context.Context, userID, fingerprint string) (bool, error)
}

// BiometricVerifier 生物特征 token 校验
type BiometricVerifier interface {
	VerifyBiometric(ctx context.Context, userID, token string) (bool, error)
}

// LocationVerifier 地理位置校验
type LocationVerifier interface {
	VerifyLocation(ctx context.Context, userID string, location *Location) (bool, error)
}

// SessionVerifier 会话完整性校验
type SessionVerifier interface {
	VerifySession(ctx context.Context, userID, sessionToken string) (bool, error)
}

// BehaviorAnalyzer 将手势与用户历史行为统计比对，返回 [0,1] 匹配分
type BehaviorAnalyzer interface {
	AnalyzeSlideBehavior(ctx context.Context, userID string, gesture *GestureData) (float64, error)
	// RecordSlideBehavior 成功执行后回写行为样本
	RecordSlideBehavior(ctx context.Context, userID string, gesture *GestureData) error
}

// NotificationPublisher 通知出口，fire-and-forget
type NotificationPublisher interface {
	SendNotification(ctx context.Context, userID, eventType string, payload interface{}) error
}

// SlideOrderStore 滑动会话存储（带 TTL 的 get/set/delete 抽象）
// 所有变更都经由会话管理器，外部不得直接修改
type SlideOrderStore interface {
	Save(ctx context.Context, order *SlideOrder, ttl time.Duration) error
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, token string) (*SlideOrder, error)
	Delete(ctx context.Context, token string) error
}

// SlideOrderSweeper 支持批量清理过期会话的存储（内存主存实现）
type SlideOrderSweeper interface {
	SlideOrderStore
	// DeleteExpired 移除所有已过期会话，返回清理数量
	DeleteExpired(ctx context.Context, now time.Time) ([]*SlideOrder, error)
}
