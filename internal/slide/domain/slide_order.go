// Package domain 滑动确认（slide-to-execute）安全层的领域模型
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
)

// SlideStatus 滑动会话状态
type SlideStatus string

const (
	SlideStatusPendingSlide   SlideStatus = "PENDING_SLIDE"
	SlideStatusSlideValidated SlideStatus = "SLIDE_VALIDATED"
	SlideStatusRiskRejected   SlideStatus = "RISK_REJECTED"
	SlideStatusExecuting      SlideStatus = "EXECUTING"
	SlideStatusExecuted       SlideStatus = "EXECUTED"
	SlideStatusCancelled      SlideStatus = "CANCELLED"
	// 超过最大尝试次数后的终态，token 永久作废
	SlideStatusBlocked SlideStatus = "BLOCKED"
)

// SecurityLevel 安全等级
type SecurityLevel string

const (
	SecurityLevelLow    SecurityLevel = "LOW"
	SecurityLevelMedium SecurityLevel = "MEDIUM"
	SecurityLevelHigh   SecurityLevel = "HIGH"
)

// SlideComplexity 滑动手势复杂度要求
type SlideComplexity string

const (
	SlideComplexitySimple  SlideComplexity = "SIMPLE"
	SlideComplexityMedium  SlideComplexity = "MEDIUM"
	SlideComplexityComplex SlideComplexity = "COMPLEX"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// RiskAssessment 订单风险评估结果
type RiskAssessment struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Warnings  []string  `json:"warnings,omitempty"`
	IsOptions bool      `json:"is_options"`
	IsMargin  bool      `json:"is_margin"`
}

// RiskDecision 最终风险复核结果
type RiskDecision struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons,omitempty"`
}

// SlideRequirements 按风险分层得出的安全要求
type SlideRequirements struct {
	SecurityLevel          SecurityLevel   `json:"security_level"`
	Biometric              bool            `json:"biometric"`
	DeviceVerification     bool            `json:"device_verification"`
	LocationVerification   bool            `json:"location_verification"`
	AdditionalConfirmation bool            `json:"additional_confirmation"`
	SlideComplexity        SlideComplexity `json:"slide_complexity"`
}

// SlideOrder 滑动会话，按 slideToken 键控的临时对象
// 由发起用户独占，任何归属不匹配都是安全违规而非 not-found
type SlideOrder struct {
	SlideToken   string             `json:"slide_token"`
	UserID       string             `json:"user_id"`
	OrderData    *orderdomain.Order `json:"order_data"`
	OrderValue   decimal.Decimal    `json:"order_value"`
	Risk         *RiskAssessment    `json:"risk"`
	Requirements *SlideRequirements `json:"requirements"`
	// 会话签发时间
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Attempts  int         `json:"attempts"`
	Status    SlideStatus `json:"status"`
	// 最近一次手势/安全校验的快照
	GestureScore  float64 `json:"gesture_score"`
	SecurityScore float64 `json:"security_score"`
	// 完成与执行时间戳
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	// 执行结果回填的订单 ID
	ExecutedOrderID string `json:"executed_order_id,omitempty"`
}

// IsExpired 会话是否已过期
func (so *SlideOrder) IsExpired(now time.Time) bool {
	return now.After(so.ExpiresAt)
}

// Location 地理位置
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SlideData 客户端提交的手势与安全遥测
type SlideData struct {
	Gesture           *GestureData `json:"gesture"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	BiometricToken    string       `json:"biometric_token"`
	Location          *Location    `json:"location,omitempty"`
	SessionToken      string       `json:"session_token"`
	// 客户端手势时间戳（UnixMilli），用于防重放
	ClientTimestamp int64 `json:"client_timestamp"`
}
