package models

import (
	"math"
	"time"
)

// WeekdayClass 星期分类（工作日/周末），基线按此分桶
type WeekdayClass int

const (
	ClassWeekday WeekdayClass = 0
	ClassWeekend WeekdayClass = 1
)

// WeekdayClassOf 时刻所属的星期分类
func WeekdayClassOf(t time.Time) WeekdayClass {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return ClassWeekend
	default:
		return ClassWeekday
	}
}

// BaselineBucket 单个 (星期分类, 小时) 桶的增量统计（Welford 算法）
type BaselineBucket struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Fold 折入一个小时聚合观测值
func (b *BaselineBucket) Fold(value float64) {
	b.Count++
	delta := value - b.Mean
	b.Mean += delta / float64(b.Count)
	b.M2 += delta * (value - b.Mean)
}

// Spread 标准差（观测数不足 2 时为 0）
func (b *BaselineBucket) Spread() float64 {
	if b.Count < 2 {
		return 0
	}
	return math.Sqrt(b.M2 / float64(b.Count-1))
}

// BaselineProfile 个人活动基线（学习窗口内增量构建，之后只读持续精炼）
// 归基线学习器独占所有，持久化以跨重启存活
type BaselineProfile struct {
	UserID    string                  `json:"user_id"`
	StartedAt time.Time               `json:"started_at"` // 首个样本时刻，学习窗口起点
	Buckets   [2][24]BaselineBucket   `json:"buckets"`    // [星期分类][小时]
	UpdatedAt time.Time               `json:"updated_at"`
}

// Bucket 取出指定时刻对应的桶
func (p *BaselineProfile) Bucket(at time.Time) *BaselineBucket {
	return &p.Buckets[WeekdayClassOf(at)][at.Hour()]
}

// Clone 深拷贝（持久化快照用）
func (p *BaselineProfile) Clone() *BaselineProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
