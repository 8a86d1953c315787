package domain

import (
	"math"
)

// PathPoint 手势路径采样点
type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// 采样时间（UnixMilli）
	T int64 `json:"t"`
}

// GestureData 捕获的滑动手势
type GestureData struct {
	// 手势时长（毫秒）
	Duration int64 `json:"duration"`
	// 滑动距离
	Distance float64 `json:"distance"`
	// 滑轨全长
	TrackLength float64 `json:"track_length"`
	// 按时间排序的位置序列
	Path []PathPoint `json:"path"`
	// 派生的速度轨迹
	VelocityPoints []float64 `json:"velocity_points"`
}

// GestureResult 手势校验结果
// 分数从 100 起每项违规扣减，不低于 0；Reason 为首个失败项
type GestureResult struct {
	Valid  bool    `json:"valid"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
	// 路径平滑度评分 [0,1]
	Smoothness float64 `json:"smoothness"`
}

// GestureValidator 手势动力学校验器，纯内存计算
type GestureValidator struct {
	// 时长下限/上限（毫秒）
	MinDuration int64
	MaxDuration int64
	// 滑动距离占滑轨全长的最低比例
	MinDistanceRatio float64
	// 平滑度下限
	MinSmoothness float64
	// 行为匹配分下限
	MinBehaviorScore float64
}

// NewGestureValidator 创建带默认阈值的手势校验器
func NewGestureValidator() *GestureValidator {
	return &GestureValidator{
		MinDuration:      1000,
		MaxDuration:      10000,
		MinDistanceRatio: 0.8,
		MinSmoothness:    0.3,
		MinBehaviorScore: 0.5,
	}
}

// 平滑度算法参数
const (
	// 相邻段平均速度变化的上限（超过视为机械抖动）
	maxAvgVelocityChange = 1.0
	// 急转判定角（弧度）
	sharpTurnAngle = math.Pi / 4
	// 急转段占比上限
	maxSharpTurnRatio = 0.3
	// 全路径累计方向变化下限（完全笔直 = 机器）
	minTotalDirectionChange = 0.01
	// 速度剖面首/尾考察的样本数
	velocityRampSamples = 5
	// 单步速度突变占峰值的比例上限
	maxVelocityJumpRatio = 0.8
)

// Validate 校验手势是否具备人类动力学特征
// behaviorScore 为行为分析器给出的 [0,1] 历史匹配分
func (v *GestureValidator) Validate(gesture *GestureData, behaviorScore float64) *GestureResult {
	result := &GestureResult{Valid: true, Score: 100}

	if gesture.Duration < v.MinDuration {
		v.deduct(result, 30, "slide too fast")
	} else if gesture.Duration > v.MaxDuration {
		v.deduct(result, 20, "slide too slow")
	}

	if gesture.TrackLength > 0 && gesture.Distance < v.MinDistanceRatio*gesture.TrackLength {
		v.deduct(result, 40, "incomplete slide")
	}

	result.Smoothness = PathSmoothness(gesture.Path)
	if result.Smoothness < v.MinSmoothness {
		v.deduct(result, 50, "invalid slide pattern")
	}

	if !NaturalVelocityProfile(gesture.VelocityPoints) {
		v.deduct(result, 35, "unnatural velocity")
	}

	if behaviorScore < v.MinBehaviorScore {
		v.deduct(result, 25, "doesn't match user behavior")
	}

	return result
}

func (v *GestureValidator) deduct(result *GestureResult, points float64, reason string) {
	result.Valid = false
	if result.Reason == "" {
		result.Reason = reason
	}
	result.Score -= points
	if result.Score < 0 {
		result.Score = 0
	}
}

// PathSmoothness 计算路径平滑度 [0,1]
// 对每个内部采样点计算前后瞬时速度与转向角，累计速度变化与角度变化；
// 机械抖动、频繁急转、完全笔直三种特征各扣固定分
func PathSmoothness(path []PathPoint) float64 {
	if len(path) < 3 {
		return 0
	}

	smoothness := 1.0
	segments := 0
	sharpTurns := 0
	totalVelocityChange := 0.0
	totalDirectionChange := 0.0

	for i := 1; i < len(path)-1; i++ {
		prev, curr, next := path[i-1], path[i], path[i+1]

		vBefore := segmentVelocity(prev, curr)
		vAfter := segmentVelocity(curr, next)
		totalVelocityChange += math.Abs(vAfter - vBefore)

		angleBefore := math.Atan2(curr.Y-prev.Y, curr.X-prev.X)
		angleAfter := math.Atan2(next.Y-curr.Y, next.X-curr.X)
		angleDelta := math.Abs(normalizeAngle(angleAfter - angleBefore))
		totalDirectionChange += angleDelta
		if angleDelta > sharpTurnAngle {
			sharpTurns++
		}

		segments++
	}

	if segments == 0 {
		return 0
	}

	if totalVelocityChange/float64(segments) > maxAvgVelocityChange {
		smoothness -= 0.3
	}
	if float64(sharpTurns)/float64(segments) > maxSharpTurnRatio {
		smoothness -= 0.4
	}
	if totalDirectionChange < minTotalDirectionChange {
		smoothness -= 0.5
	}

	if smoothness < 0 {
		return 0
	}
	return smoothness
}

// NaturalVelocityProfile 校验速度剖面是否呈现先加速后减速的自然形态
// 前若干样本须单调不减（加速段），末若干样本须单调不增（减速段）；
// 任一单步速度变化超过峰值的 80% 视为物理上不可能的突变
func NaturalVelocityProfile(velocities []float64) bool {
	if len(velocities) < velocityRampSamples {
		return false
	}

	ramp := velocityRampSamples
	if ramp > len(velocities)/2 {
		ramp = len(velocities) / 2
	}

	for i := 1; i < ramp; i++ {
		if velocities[i] < velocities[i-1] {
			return false
		}
	}
	for i := len(velocities) - ramp + 1; i < len(velocities); i++ {
		if velocities[i] > velocities[i-1] {
			return false
		}
	}

	peak := 0.0
	for _, v := range velocities {
		if v > peak {
			peak = v
		}
	}
	for i := 1; i < len(velocities); i++ {
		if math.Abs(velocities[i]-velocities[i-1]) > maxVelocityJumpRatio*peak {
			return false
		}
	}
	return true
}

// segmentVelocity 相邻采样点间的瞬时速度
func segmentVelocity(a, b PathPoint) float64 {
	dt := float64(b.T - a.T)
	if dt <= 0 {
		return 0
	}
	return math.Hypot(b.X-a.X, b.Y-a.Y) / dt
}

// normalizeAngle 归一化到 (-π, π]
func normalizeAngle(angle float64) float64 {
	for angle > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle <= -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}
