package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// humanPath 模拟真人滑动：匀速右移并带轻微纵向抖动
func humanPath(n int) []PathPoint {
	path := make([]PathPoint, n)
	for i := 0; i < n; i++ {
		path[i] = PathPoint{
			X: float64(i) * 15,
			Y: 2 * math.Sin(float64(i)*0.6),
			T: int64(i) * 100,
		}
	}
	return path
}

// humanVelocities 模拟真人速度剖面：加速、平稳、减速
func humanVelocities() []float64 {
	return []float64{0.5, 1.0, 1.5, 2.0, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.0, 1.5, 1.0, 0.5}
}

func validGesture() *GestureData {
	return &GestureData{
		Duration:       2500,
		Distance:       300,
		TrackLength:    300,
		Path:           humanPath(21),
		VelocityPoints: humanVelocities(),
	}
}

func TestValidateGesture_HumanGesturePasses(t *testing.T) {
	v := NewGestureValidator()
	result := v.Validate(validGesture(), 0.9)
	require.True(t, result.Valid, "reason: %s", result.Reason)
	assert.Equal(t, float64(100), result.Score)
	assert.Empty(t, result.Reason)
}

func TestValidateGesture_TooFast(t *testing.T) {
	v := NewGestureValidator()
	g := validGesture()
	g.Duration = 200

	result := v.Validate(g, 0.9)
	require.False(t, result.Valid)
	assert.Equal(t, "slide too fast", result.Reason)
	assert.Equal(t, float64(70), result.Score)
}

func TestValidateGesture_TooSlow(t *testing.T) {
	v := NewGestureValidator()
	g := validGesture()
	g.Duration = 12000

	result := v.Validate(g, 0.9)
	require.False(t, result.Valid)
	assert.Equal(t, "slide too slow", result.Reason)
	assert.Equal(t, float64(80), result.Score)
}

func TestValidateGesture_IncompleteSlide(t *testing.T) {
	v := NewGestureValidator()
	g := validGesture()
	g.Distance = 0.79 * g.TrackLength

	result := v.Validate(g, 0.9)
	require.False(t, result.Valid)
	assert.Equal(t, "incomplete slide", result.Reason)
	assert.Equal(t, float64(60), result.Score)
}

func TestValidateGesture_ExactCompletionBoundaryPasses(t *testing.T) {
	v := NewGestureValidator()
	g := validGesture()
	g.Distance = 0.8 * g.TrackLength

	result := v.Validate(g, 0.9)
	assert.True(t, result.Valid, "reason: %s", result.Reason)
}

func TestValidateGesture_RoboticPatternRejected(t *testing.T) {
	// 完全笔直且分段速度剧烈交替：两项平滑度扣分叠加后低于下限
	path := make([]PathPoint, 21)
	ts := int64(0)
	for i := 0; i < 21; i++ {
		path[i] = PathPoint{X: float64(i) * 30, Y: 0, T: ts}
		if i%2 == 0 {
			ts += 10
		} else {
			ts += 190
		}
	}

	v := NewGestureValidator()
	g := validGesture()
	g.Path = path

	result := v.Validate(g, 0.9)
	require.False(t, result.Valid)
	assert.Equal(t, "invalid slide pattern", result.Reason)
	assert.Equal(t, float64(50), result.Score)
}

func TestValidateGesture_LowBehaviorScore(t *testing.T) {
	v := NewGestureValidator()

	result := v.Validate(validGesture(), 0.4)
	require.False(t, result.Valid)
	assert.Equal(t, "doesn't match user behavior", result.Reason)
	assert.Equal(t, float64(75), result.Score)

	assert.True(t, v.Validate(validGesture(), 0.5).Valid)
}

func TestValidateGesture_FirstFailureWinsAndScoreStacks(t *testing.T) {
	v := NewGestureValidator()
	g := validGesture()
	g.Duration = 200
	g.Distance = 0.5 * g.TrackLength

	result := v.Validate(g, 0.4)
	require.False(t, result.Valid)
	assert.Equal(t, "slide too fast", result.Reason)
	assert.Equal(t, float64(5), result.Score)
}

func TestValidateGesture_ScoreFloorsAtZero(t *testing.T) {
	v := NewGestureValidator()
	g := &GestureData{
		Duration:       200,
		Distance:       10,
		TrackLength:    300,
		Path:           nil,
		VelocityPoints: []float64{5, 1},
	}

	result := v.Validate(g, 0.1)
	require.False(t, result.Valid)
	assert.Equal(t, float64(0), result.Score)
}

func TestPathSmoothness(t *testing.T) {
	t.Run("人类抖动路径满分", func(t *testing.T) {
		assert.Equal(t, 1.0, PathSmoothness(humanPath(21)))
	})

	t.Run("完全笔直扣方向分", func(t *testing.T) {
		path := make([]PathPoint, 11)
		for i := range path {
			path[i] = PathPoint{X: float64(i) * 30, Y: 0, T: int64(i) * 100}
		}
		assert.InDelta(t, 0.5, PathSmoothness(path), 1e-9)
	})

	t.Run("频繁急转扣转向分", func(t *testing.T) {
		path := make([]PathPoint, 13)
		for i := range path {
			y := 0.0
			if i%2 == 1 {
				y = 40
			}
			path[i] = PathPoint{X: float64(i) * 20, Y: y, T: int64(i) * 100}
		}
		assert.InDelta(t, 0.6, PathSmoothness(path), 1e-9)
	})

	t.Run("采样不足视为机器", func(t *testing.T) {
		assert.Equal(t, 0.0, PathSmoothness([]PathPoint{{X: 0, T: 0}, {X: 100, T: 100}}))
	})
}

func TestNaturalVelocityProfile(t *testing.T) {
	assert.True(t, NaturalVelocityProfile(humanVelocities()))

	t.Run("起步即减速", func(t *testing.T) {
		assert.False(t, NaturalVelocityProfile([]float64{2, 1, 1.5, 2, 2.5, 2, 1.5, 1, 0.5, 0.2}))
	})

	t.Run("结尾加速", func(t *testing.T) {
		assert.False(t, NaturalVelocityProfile([]float64{0.5, 1, 1.5, 2, 2.5, 2.5, 2, 1.5, 1, 3}))
	})

	t.Run("单步突变超过峰值八成", func(t *testing.T) {
		assert.False(t, NaturalVelocityProfile([]float64{1, 1, 1, 1, 10, 10, 5, 3, 2, 1}))
	})

	t.Run("采样过少", func(t *testing.T) {
		assert.False(t, NaturalVelocityProfile([]float64{1, 2, 3}))
	})
}
