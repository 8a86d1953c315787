package application

import (
	"context"
	"sync"

	"github.com/wyfcoding/tradeexecution/pkg/cache"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
)

const analyticsMirrorKey = "slide:analytics:global"

// UserSlideStatsDTO 单个用户的滑动确认统计
type UserSlideStatsDTO struct {
	Prepared    int64   `json:"prepared"`
	Executed    int64   `json:"executed"`
	Rejected    int64   `json:"rejected"`
	SuccessRate float64 `json:"success_rate"`
}

// SlideAnalyticsDTO 滑动确认的聚合统计
type SlideAnalyticsDTO struct {
	Prepared         int64              `json:"prepared"`
	Executed         int64              `json:"executed"`
	Rejected         int64              `json:"rejected"`
	Cancelled        int64              `json:"cancelled"`
	Expired          int64              `json:"expired"`
	Blocked          int64              `json:"blocked"`
	SuccessRate      float64            `json:"success_rate"`
	AvgGestureScore  float64            `json:"avg_gesture_score"`
	AvgSlideDuration float64            `json:"avg_slide_duration_ms"`
	RejectionReasons map[string]int64   `json:"rejection_reasons"`
	User             *UserSlideStatsDTO `json:"user,omitempty"`
}

type userCounters struct {
	prepared int64
	executed int64
	rejected int64
}

// slideAnalytics 进程内统计，每次变更后镜像到 Redis 供离线分析
type slideAnalytics struct {
	mu sync.Mutex

	prepared  int64
	executed  int64
	rejected  int64
	cancelled int64
	expired   int64
	blocked   int64

	gestureScoreSum float64
	durationSumMs   float64
	reasons         map[string]int64
	users           map[string]*userCounters

	cache *cache.RedisCache
}

func newSlideAnalytics(c *cache.RedisCache) *slideAnalytics {
	return &slideAnalytics{
		reasons: make(map[string]int64),
		users:   make(map[string]*userCounters),
		cache:   c,
	}
}

func (a *slideAnalytics) user(userID string) *userCounters {
	u, ok := a.users[userID]
	if !ok {
		u = &userCounters{}
		a.users[userID] = u
	}
	return u
}

func (a *slideAnalytics) recordPrepared(ctx context.Context, userID string) {
	a.mu.Lock()
	a.prepared++
	a.user(userID).prepared++
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

func (a *slideAnalytics) recordExecuted(ctx context.Context, userID string, gestureScore float64, durationMs int64) {
	a.mu.Lock()
	a.executed++
	a.gestureScoreSum += gestureScore
	a.durationSumMs += float64(durationMs)
	a.user(userID).executed++
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

func (a *slideAnalytics) recordRejected(ctx context.Context, userID, reason string) {
	a.mu.Lock()
	a.rejected++
	a.reasons[reason]++
	a.user(userID).rejected++
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

func (a *slideAnalytics) recordCancelled(ctx context.Context, userID string) {
	a.mu.Lock()
	a.cancelled++
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

func (a *slideAnalytics) recordExpired(ctx context.Context, count int) {
	a.mu.Lock()
	a.expired += int64(count)
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

func (a *slideAnalytics) recordBlocked(ctx context.Context, userID string) {
	a.mu.Lock()
	a.blocked++
	a.mu.Unlock()
	a.mirrorSnapshot(ctx)
}

// snapshot 汇总当前统计；userID 非空且有记录时附带该用户明细
func (a *slideAnalytics) snapshot(userID string) *SlideAnalyticsDTO {
	a.mu.Lock()
	defer a.mu.Unlock()

	dto := &SlideAnalyticsDTO{
		Prepared:         a.prepared,
		Executed:         a.executed,
		Rejected:         a.rejected,
		Cancelled:        a.cancelled,
		Expired:          a.expired,
		Blocked:          a.blocked,
		RejectionReasons: make(map[string]int64, len(a.reasons)),
	}
	for reason, count := range a.reasons {
		dto.RejectionReasons[reason] = count
	}
	if a.prepared > 0 {
		dto.SuccessRate = float64(a.executed) / float64(a.prepared)
	}
	if a.executed > 0 {
		dto.AvgGestureScore = a.gestureScoreSum / float64(a.executed)
		dto.AvgSlideDuration = a.durationSumMs / float64(a.executed)
	}
	if u, ok := a.users[userID]; ok {
		stats := &UserSlideStatsDTO{
			Prepared: u.prepared,
			Executed: u.executed,
			Rejected: u.rejected,
		}
		if u.prepared > 0 {
			stats.SuccessRate = float64(u.executed) / float64(u.prepared)
		}
		dto.User = stats
	}
	return dto
}

func (a *slideAnalytics) mirrorSnapshot(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SetJSON(ctx, analyticsMirrorKey, a.snapshot(""), 0); err != nil {
		logger.Warn(ctx, "Failed to mirror slide analytics", "error", err)
	}
}
