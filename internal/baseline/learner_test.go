package baseline

import (
	"testing"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLearner(t *testing.T, profile *models.BaselineProfile) *Learner {
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewLearner(cfg, "user-1", profile, zap.NewNop())
}

// 构造一个学习窗口已完成、指定桶已有观测的基线
func completedProfile(startedAt time.Time, bucketAt time.Time, values []float64) *models.BaselineProfile {
	profile := &models.BaselineProfile{
		UserID:    "user-1",
		StartedAt: startedAt,
	}
	bucket := profile.Bucket(bucketAt)
	for _, v := range values {
		bucket.Fold(v)
	}
	return profile
}

func TestIsTypical_AlwaysTrueDuringLearningWindow(t *testing.T) {
	learner := newTestLearner(t, nil)

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: start, Kind: models.SignalStepDelta, Magnitude: 100})

	// 窗口内任何观测值都典型，包括极端值
	at := start.Add(3 * 24 * time.Hour)
	assert.True(t, learner.IsTypical(0, at))
	assert.True(t, learner.IsTypical(1e9, at))
}

func TestIsTypical_AfterWindowDetectsOutliers(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	// 2025-06-16 周一 09:00，与学习的桶同类（工作日 9 点）
	at := time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC)

	profile := completedProfile(start, at, []float64{100, 110, 90, 105, 95})
	learner := newTestLearner(t, profile)

	require.True(t, learner.LearningComplete(at))

	// mean=100, spread≈7.9, k=2.0 → 带宽约 [84.2, 115.8]
	assert.True(t, learner.IsTypical(100, at))
	assert.True(t, learner.IsTypical(112, at))
	assert.False(t, learner.IsTypical(10, at))
	assert.False(t, learner.IsTypical(200, at))
}

func TestIsTypical_SparseBucketFailsOpen(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC)

	// 桶内只有 2 个观测，低于 MinBucketSamples=4 → 恒典型
	profile := completedProfile(start, at, []float64{100, 110})
	learner := newTestLearner(t, profile)

	require.True(t, learner.LearningComplete(at))
	assert.True(t, learner.IsTypical(0, at))
	assert.True(t, learner.IsTypical(1e6, at))
}

func TestDaysIntoLearning(t *testing.T) {
	learner := newTestLearner(t, nil)

	// 尚无样本 → 第 1 天
	day, complete := learner.DaysIntoLearning(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	assert.False(t, complete)
	assert.Equal(t, 1, day)

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: start, Kind: models.SignalStepDelta, Magnitude: 10})

	day, complete = learner.DaysIntoLearning(start.Add(1 * time.Hour))
	assert.False(t, complete)
	assert.Equal(t, 1, day)

	day, complete = learner.DaysIntoLearning(start.Add(5*24*time.Hour + time.Hour))
	assert.False(t, complete)
	assert.Equal(t, 6, day)

	_, complete = learner.DaysIntoLearning(start.Add(14 * 24 * time.Hour))
	assert.True(t, complete)
}

func TestCloseHour_FoldsCompletedHours(t *testing.T) {
	learner := newTestLearner(t, nil)

	h9 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: h9.Add(5 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 40})
	learner.RecordSample(models.ActivitySample{Timestamp: h9.Add(20 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 60})

	// 整点节拍 → 9 点的 100 被折入工作日 9 点桶
	_, closed := learner.CloseHour(h9.Add(time.Hour))
	require.True(t, closed)

	profile := learner.Profile()
	bucket := profile.Bucket(h9)
	assert.Equal(t, int64(1), bucket.Count)
	assert.InDelta(t, 100.0, bucket.Mean, 0.001)
}

func TestCloseHour_ZeroFillsSilentHours(t *testing.T) {
	learner := newTestLearner(t, nil)

	h9 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: h9.Add(10 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 100})

	// 10、11 点无样本 → 12 点关帐时按 0 折入，最近完成小时观测为 0
	obs, closed := learner.CloseHour(h9.Add(3 * time.Hour))
	require.True(t, closed)
	assert.Equal(t, 0.0, obs.Observed)
	assert.Equal(t, h9.Add(2*time.Hour), obs.HourStart)

	profile := learner.Profile()
	assert.Equal(t, int64(1), profile.Bucket(h9).Count)
	assert.Equal(t, int64(1), profile.Bucket(h9.Add(time.Hour)).Count)
	assert.InDelta(t, 0.0, profile.Bucket(h9.Add(time.Hour)).Mean, 0.001)
}

func TestCloseHour_EvaluatesBeforeFolding(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)

	// 桶已有 4 个稳定观测（mean=100），本小时观测 5 必须按折入前的
	// 统计判为非典型
	profile := completedProfile(start, at, []float64{95, 100, 105, 100})
	learner := newTestLearner(t, profile)

	learner.RecordSample(models.ActivitySample{Timestamp: at.Add(10 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 5})

	obs, closed := learner.CloseHour(at.Add(time.Hour))
	require.True(t, closed)
	assert.True(t, obs.Trusted)
	assert.False(t, obs.Typical)
	assert.InDelta(t, 100.0, obs.Mean, 0.001)
}

func TestRecordSample_IgnoresMotionStream(t *testing.T) {
	learner := newTestLearner(t, nil)

	ts := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: ts, Kind: models.SignalMotion, Magnitude: 1.2})

	// 运动强度流不触发学习窗口起点
	profile := learner.Profile()
	assert.True(t, profile.StartedAt.IsZero())
}

func TestCloseHour_ReturnsObservedAggregate(t *testing.T) {
	learner := newTestLearner(t, nil)

	h9 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	learner.RecordSample(models.ActivitySample{Timestamp: h9.Add(10 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 30})
	learner.RecordSample(models.ActivitySample{Timestamp: h9.Add(40 * time.Minute), Kind: models.SignalStepDelta, Magnitude: 20})

	obs, closed := learner.CloseHour(h9.Add(time.Hour))
	require.True(t, closed)
	assert.Equal(t, 50.0, obs.Observed)
	assert.Equal(t, h9, obs.HourStart)

	// 观测已折入桶
	bucket := learner.Profile().Bucket(h9)
	assert.Equal(t, int64(1), bucket.Count)
}

func TestCloseHour_NoSamplesYet(t *testing.T) {
	learner := newTestLearner(t, nil)
	_, closed := learner.CloseHour(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	assert.False(t, closed)
}
