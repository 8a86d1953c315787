package domain

import "errors"

// 错误分类：
// SecurityError 归属不匹配、安全校验失败、超次数、会话失窃 —— 记安全事件
// RiskRejection 手势通过后的最终风控拦截 —— 业务规则，非欺诈信号
// StateError token 不存在/过期/状态不符 —— 客户端陈旧状态，重新 prepare 可恢复
var (
	ErrSecurityViolation   = errors.New("slide security violation")
	ErrRiskRejected        = errors.New("order rejected by final risk check")
	ErrSlideNotFound       = errors.New("slide order not found")
	ErrSlideExpired        = errors.New("slide order expired")
	ErrInvalidSlideState   = errors.New("slide order is not in a valid state for this operation")
	ErrMaxAttemptsExceeded = errors.New("maximum slide attempts exceeded")
	ErrGestureRejected     = errors.New("slide gesture validation failed")
	ErrSecurityCheckFailed = errors.New("slide security checks failed")
)
