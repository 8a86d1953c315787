package security

import (
	"context"
	"fmt"

	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
)

const behaviorProfileKeyPrefix = "behavior:profile:"

// 冷启动样本阈值：样本不足时返回中性分，避免将新用户一律判为异常
const behaviorColdStartSamples = 5

// 中性分，恰好高于手势校验的行为分下限
const behaviorColdStartScore = 0.7

// 指数滑动平均的新样本权重
const behaviorEWMAAlpha = 0.2

// BehaviorProfile 用户滑动行为画像，指数滑动平均维护
type BehaviorProfile struct {
	Samples     int     `json:"samples"`
	AvgDuration float64 `json:"avg_duration"`
	AvgDistance float64 `json:"avg_distance"`
}

// BehaviorAnalyzer 将本次手势与历史画像比对，输出 [0,1] 匹配分
type BehaviorAnalyzer struct {
	cache *cache.RedisCache
}

func NewBehaviorAnalyzer(c *cache.RedisCache) *BehaviorAnalyzer {
	return &BehaviorAnalyzer{cache: c}
}

// AnalyzeSlideBehavior 计算行为匹配分
// 时长与距离各占一半，按与历史均值的比例相似度计分
func (a *BehaviorAnalyzer) AnalyzeSlideBehavior(ctx context.Context, userID string, gesture *domain.GestureData) (float64, error) {
	profile, err := a.loadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil || profile.Samples < behaviorColdStartSamples {
		return behaviorColdStartScore, nil
	}

	durationSim := ratioSimilarity(float64(gesture.Duration), profile.AvgDuration)
	distanceSim := ratioSimilarity(gesture.Distance, profile.AvgDistance)
	return 0.5*durationSim + 0.5*distanceSim, nil
}

// RecordSlideBehavior 成功执行后回写行为样本
func (a *BehaviorAnalyzer) RecordSlideBehavior(ctx context.Context, userID string, gesture *domain.GestureData) error {
	profile, err := a.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &BehaviorProfile{}
	}

	if profile.Samples == 0 {
		profile.AvgDuration = float64(gesture.Duration)
		profile.AvgDistance = gesture.Distance
	} else {
		profile.AvgDuration = behaviorEWMAAlpha*float64(gesture.Duration) + (1-behaviorEWMAAlpha)*profile.AvgDuration
		profile.AvgDistance = behaviorEWMAAlpha*gesture.Distance + (1-behaviorEWMAAlpha)*profile.AvgDistance
	}
	profile.Samples++

	if err := a.cache.SetJSON(ctx, behaviorProfileKeyPrefix+userID, profile, 0); err != nil {
		return fmt.Errorf("record slide behavior: %w", err)
	}
	return nil
}

func (a *BehaviorAnalyzer) loadProfile(ctx context.Context, userID string) (*BehaviorProfile, error) {
	var profile BehaviorProfile
	found, err := a.cache.GetJSON(ctx, behaviorProfileKeyPrefix+userID, &profile)
	if err != nil {
		return nil, fmt.Errorf("load behavior profile: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}

// ratioSimilarity min/max 比例相似度，两值相等时为 1
func ratioSimilarity(observed, baseline float64) float64 {
	if observed <= 0 || baseline <= 0 {
		return 0
	}
	if observed > baseline {
		return baseline / observed
	}
	return observed / baseline
}
