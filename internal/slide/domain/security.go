package domain

import (
	"context"
	"time"
)

// SecurityCheckResult 多因子安全校验结果
// 分数从 100 起扣减，不低于 0；Reason 为固定顺序下的首个失败项
type SecurityCheckResult struct {
	Passed bool            `json:"passed"`
	Reason string          `json:"reason"`
	Score  float64         `json:"score"`
	Checks map[string]bool `json:"checks"`
}

// SecurityChecker 按会话安全要求聚合各验证端口
// 设备、生物识别、地理位置三项按要求条件执行；会话与时间戳两项始终执行
type SecurityChecker struct {
	device    DeviceVerifier
	biometric BiometricVerifier
	location  LocationVerifier
	session   SessionVerifier

	// 客户端时间戳允许早于令牌签发的偏移
	ClockSkew time.Duration
	// 客户端时间戳允许晚于令牌签发的最大窗口（防重放）
	ReplayWindow time.Duration
}

// NewSecurityChecker 创建安全校验聚合器
func NewSecurityChecker(device DeviceVerifier, biometric BiometricVerifier, location LocationVerifier, session SessionVerifier) *SecurityChecker {
	return &SecurityChecker{
		device:       device,
		biometric:    biometric,
		location:     location,
		session:      session,
		ClockSkew:    5 * time.Second,
		ReplayWindow: 2 * time.Minute,
	}
}

// Check 对滑动执行请求做多因子安全校验
// 校验顺序固定：设备指纹、生物识别、地理位置、会话令牌、时间戳新鲜度
func (c *SecurityChecker) Check(ctx context.Context, order *SlideOrder, data *SlideData) *SecurityCheckResult {
	result := &SecurityCheckResult{Passed: true, Score: 100, Checks: make(map[string]bool)}

	// 验证端口出错按未通过处理（fail-closed）
	if order.Requirements.DeviceVerification {
		ok, err := c.device.VerifyDevice(ctx, order.UserID, data.DeviceFingerprint)
		ok = ok && err == nil
		result.Checks["device"] = ok
		if !ok {
			c.fail(result, 40, "device verification failed")
		}
	}

	if order.Requirements.Biometric {
		ok, err := c.biometric.VerifyBiometric(ctx, order.UserID, data.BiometricToken)
		ok = ok && err == nil
		result.Checks["biometric"] = ok
		if !ok {
			c.fail(result, 50, "biometric verification failed")
		}
	}

	if order.Requirements.LocationVerification {
		ok, err := c.location.VerifyLocation(ctx, order.UserID, data.Location)
		ok = ok && err == nil
		result.Checks["location"] = ok
		if !ok {
			c.fail(result, 30, "location verification failed")
		}
	}

	sessionOK, err := c.session.VerifySession(ctx, order.UserID, data.SessionToken)
	sessionOK = sessionOK && err == nil
	result.Checks["session"] = sessionOK
	if !sessionOK {
		c.fail(result, 60, "invalid session")
	}

	freshOK := c.timestampFresh(order, data.ClientTimestamp)
	result.Checks["timestamp"] = freshOK
	if !freshOK {
		c.fail(result, 45, "invalid slide timestamp")
	}

	return result
}

func (c *SecurityChecker) fail(result *SecurityCheckResult, points float64, reason string) {
	result.Passed = false
	if result.Reason == "" {
		result.Reason = reason
	}
	result.Score -= points
	if result.Score < 0 {
		result.Score = 0
	}
}

// timestampFresh 客户端时间戳须落在令牌签发时刻附近的窗口内
// 早于签发超过时钟偏移、或晚于签发超过重放窗口的请求均拒绝
func (c *SecurityChecker) timestampFresh(order *SlideOrder, clientTimestamp int64) bool {
	if clientTimestamp <= 0 {
		return false
	}
	ts := time.UnixMilli(clientTimestamp)
	if ts.Before(order.CreatedAt.Add(-c.ClockSkew)) {
		return false
	}
	if ts.After(order.CreatedAt.Add(c.ReplayWindow)) {
		return false
	}
	return true
}
