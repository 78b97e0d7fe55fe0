package baseline

import (
	"math"
	"sync"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// HourObservation 一个已完成小时的观测及其折入基线前的典型性判断
// 典型性必须在折入前判断，否则观测本身会拉动桶统计
type HourObservation struct {
	HourStart time.Time
	Observed  float64
	Mean      float64
	Spread    float64
	Trusted   bool // 基线是否可信（学习窗口已完成且桶内观测充足）
	Typical   bool // 不可信时恒为 true（fail open）
}

// Learner 基线学习器
// 按 (星期分类, 小时) 分桶学习每小时活动量，学习窗口（默认14天）结束前
// 不做任何判断（IsTypical 恒为 true），之后只读持续精炼
// 失败语义：永不报错，数据稀疏的桶默认"典型"（fail open，宁漏不误报）
type Learner struct {
	mu      sync.RWMutex
	config  *config.Config
	logger  *zap.Logger
	profile *models.BaselineProfile

	// 未折入的小时累计（小时起点 → 活动总量），CloseHour 按序排空
	pending    map[time.Time]float64
	lastClosed time.Time // 最近一个已折入的小时起点
}

// NewLearner 创建基线学习器
// profile 为 nil 时从零开始学习（首个样本时刻作为学习窗口起点）
func NewLearner(cfg *config.Config, userID string, profile *models.BaselineProfile, logger *zap.Logger) *Learner {
	if profile == nil {
		profile = &models.BaselineProfile{UserID: userID}
	}
	return &Learner{
		config:  cfg,
		logger:  logger,
		profile: profile,
		pending: make(map[time.Time]float64),
	}
}

// RecordSample 折入一个活动样本到其所在小时的累计
// 只累计步数/楼层/解锁类信号，50Hz 的运动强度流不参与基线
func (l *Learner) RecordSample(sample models.ActivitySample) {
	if sample.Kind == models.SignalMotion {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.profile.StartedAt.IsZero() {
		l.profile.StartedAt = sample.Timestamp
		l.logger.Info("Baseline learning window started",
			zap.String("user_id", l.profile.UserID),
			zap.Time("started_at", sample.Timestamp),
		)
	}

	hour := sample.Timestamp.Truncate(time.Hour)
	if l.lastClosed.IsZero() {
		l.lastClosed = hour.Add(-time.Hour)
	}
	if !hour.After(l.lastClosed) {
		// 迟到样本，所属小时已折入，丢弃
		return
	}
	l.pending[hour] += sample.Magnitude
}

// CloseHour 关闭所有已完成的小时并折入基线
// 返回最近一个已完成小时的观测（无样本的小时观测量为 0）；
// 尚无已完成小时时 closed 为 false
func (l *Learner) CloseHour(now time.Time) (HourObservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastClosed.IsZero() {
		return HourObservation{}, false
	}

	lastComplete := now.Truncate(time.Hour).Add(-time.Hour)
	if !lastComplete.After(l.lastClosed) {
		return HourObservation{}, false
	}

	// 折入前先对最近完成的小时做典型性判断
	obs := l.evaluateLocked(l.pending[lastComplete], lastComplete)

	for h := l.lastClosed.Add(time.Hour); !h.After(lastComplete); h = h.Add(time.Hour) {
		l.profile.Bucket(h).Fold(l.pending[h])
		delete(l.pending, h)
	}
	l.lastClosed = lastComplete
	l.profile.UpdatedAt = lastComplete.Add(time.Hour)

	return obs, true
}

// IsTypical 判断观测量在该时刻的桶内是否典型（mean ± k·spread 带内）
// 学习窗口未完成或桶内数据不足时恒返回 true（无数据不判断）
func (l *Learner) IsTypical(magnitude float64, at time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evaluateLocked(magnitude, at).Typical
}

// Expected 返回该时刻桶的期望值与带宽
// ok 为 false 表示尚无可信基线（学习中或桶内数据稀疏）
func (l *Learner) Expected(at time.Time) (mean, spread float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	obs := l.evaluateLocked(0, at)
	return obs.Mean, obs.Spread, obs.Trusted
}

// evaluateLocked 用折入前的桶统计判断典型性（调用方持锁）
func (l *Learner) evaluateLocked(magnitude float64, at time.Time) HourObservation {
	obs := HourObservation{
		HourStart: at.Truncate(time.Hour),
		Observed:  magnitude,
		Typical:   true,
	}

	if !l.learningCompleteLocked(at) {
		return obs
	}

	bucket := l.profile.Bucket(at)
	if bucket.Count < int64(l.config.Wellness.Learning.MinBucketSamples) {
		return obs
	}

	spread := bucket.Spread()
	if minSpread := l.config.Wellness.Learning.MinSpread; spread < minSpread {
		spread = minSpread
	}

	obs.Mean = bucket.Mean
	obs.Spread = spread
	obs.Trusted = true

	k := l.config.Wellness.Learning.SpreadMultiplier
	obs.Typical = math.Abs(magnitude-bucket.Mean) <= k*spread
	return obs
}

// LearningComplete 学习窗口是否已结束
func (l *Learner) LearningComplete(now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.learningCompleteLocked(now)
}

func (l *Learner) learningCompleteLocked(now time.Time) bool {
	if l.profile.StartedAt.IsZero() {
		return false
	}
	window := time.Duration(l.config.Wellness.Learning.WindowDays) * 24 * time.Hour
	return now.Sub(l.profile.StartedAt) >= window
}

// DaysIntoLearning 当前学习天数（1..WindowDays）
// complete 为 true 表示学习窗口已结束（此时 day 无意义）
func (l *Learner) DaysIntoLearning(now time.Time) (day int, complete bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.learningCompleteLocked(now) {
		return 0, true
	}
	if l.profile.StartedAt.IsZero() {
		return 1, false
	}
	day = int(now.Sub(l.profile.StartedAt)/(24*time.Hour)) + 1
	if max := l.config.Wellness.Learning.WindowDays; day > max {
		day = max
	}
	return day, false
}

// Profile 基线快照（持久化用）
func (l *Learner) Profile() *models.BaselineProfile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.profile.Clone()
}
