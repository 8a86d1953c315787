// Package security 多因子验证端口的 Redis 实现
// 设备指纹、生物识别 token、地理位置、会话令牌均由账户侧服务写入 Redis，
// 本包只做读取比对，不负责签发
package security

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
	"github.com/wyfcoding/tradeexecution/pkg/utils"
)

const (
	trustedDeviceKeyPrefix  = "device:trusted:"
	biometricTokenKeyPrefix = "biometric:token:"
	lastLocationKeyPrefix   = "location:last:"
	activeSessionKeyPrefix  = "session:active:"

	// 与上次登录位置允许的最大偏移（公里）
	maxLocationDriftKm = 500
	// 位置记录保留时长
	locationRecordTTL = 30 * 24 * time.Hour
)

// DeviceVerifier 受信设备校验：指纹哈希须在用户的受信设备集合中
type DeviceVerifier struct {
	cache *cache.RedisCache
}

func NewDeviceVerifier(c *cache.RedisCache) *DeviceVerifier {
	return &DeviceVerifier{cache: c}
}

func (v *DeviceVerifier) VerifyDevice(ctx context.Context, userID, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	key := fmt.Sprintf("%s%s:%s", trustedDeviceKeyPrefix, userID, utils.SHA256Hash(fingerprint))
	n, err := v.cache.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("verify device: %w", err)
	}
	return n > 0, nil
}

// BiometricVerifier 生物识别 token 校验，token 一次性使用
type BiometricVerifier struct {
	cache *cache.RedisCache
}

func NewBiometricVerifier(c *cache.RedisCache) *BiometricVerifier {
	return &BiometricVerifier{cache: c}
}

func (v *BiometricVerifier) VerifyBiometric(ctx context.Context, userID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	key := biometricTokenKeyPrefix + userID
	stored, err := v.cache.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("verify biometric: %w", err)
	}
	if stored == "" || stored != token {
		return false, nil
	}
	// 比对成功即销毁，防止 token 复用
	if err := v.cache.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("consume biometric token: %w", err)
	}
	return true, nil
}

// LocationVerifier 地理位置校验：与最近一次已知位置的距离不得超过漂移上限
// 首次出现的用户没有历史位置，放行并记录
type LocationVerifier struct {
	cache *cache.RedisCache
}

func NewLocationVerifier(c *cache.RedisCache) *LocationVerifier {
	return &LocationVerifier{cache: c}
}

func (v *LocationVerifier) VerifyLocation(ctx context.Context, userID string, location *domain.Location) (bool, error) {
	if location == nil {
		return false, nil
	}
	key := lastLocationKeyPrefix + userID

	var last domain.Location
	found, err := v.cache.GetJSON(ctx, key, &last)
	if err != nil {
		return false, fmt.Errorf("verify location: %w", err)
	}
	if found && haversineKm(&last, location) > maxLocationDriftKm {
		return false, nil
	}

	if err := v.cache.SetJSON(ctx, key, location, locationRecordTTL); err != nil {
		return false, fmt.Errorf("record location: %w", err)
	}
	return true, nil
}

// haversineKm 球面距离（公里）
func haversineKm(a, b *domain.Location) float64 {
	const earthRadiusKm = 6371.0
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// SessionVerifier 会话令牌须与登录态保存的当前会话一致
type SessionVerifier struct {
	cache *cache.RedisCache
}

func NewSessionVerifier(c *cache.RedisCache) *SessionVerifier {
	return &SessionVerifier{cache: c}
}

func (v *SessionVerifier) VerifySession(ctx context.Context, userID, sessionToken string) (bool, error) {
	if sessionToken == "" {
		return false, nil
	}
	stored, err := v.cache.Get(ctx, activeSessionKeyPrefix+userID)
	if err != nil {
		return false, fmt.Errorf("verify session: %w", err)
	}
	return stored != "" && stored == sessionToken, nil
}
