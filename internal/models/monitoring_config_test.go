package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_ClampsThreshold(t *testing.T) {
	// 低于下限 → 钳制到 2h
	cfg := &MonitoringConfig{SilenceThresholdMinutes: 30}
	cfg.Normalize()
	assert.Equal(t, 120, cfg.SilenceThresholdMinutes)

	// 高于上限 → 钳制到 12h
	cfg = &MonitoringConfig{SilenceThresholdMinutes: 2000}
	cfg.Normalize()
	assert.Equal(t, 720, cfg.SilenceThresholdMinutes)

	// 非 30 分钟粒度 → 向下对齐
	cfg = &MonitoringConfig{SilenceThresholdMinutes: 250}
	cfg.Normalize()
	assert.Equal(t, 240, cfg.SilenceThresholdMinutes)
}

func TestSilenceThreshold_ValidRange(t *testing.T) {
	cfg := &MonitoringConfig{SilenceThresholdMinutes: 240}
	assert.Equal(t, 4*time.Hour, cfg.SilenceThreshold())

	// 未 Normalize 的越界值也要钳制
	cfg = &MonitoringConfig{SilenceThresholdMinutes: 10}
	assert.Equal(t, 2*time.Hour, cfg.SilenceThreshold())

	cfg = &MonitoringConfig{SilenceThresholdMinutes: 9999}
	assert.Equal(t, 12*time.Hour, cfg.SilenceThreshold())
}

func TestInQuietHours_SameDayInterval(t *testing.T) {
	cfg := &MonitoringConfig{
		QuietHoursEnabled: true,
		QuietStartHour:    13,
		QuietEndHour:      15,
	}

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.False(t, cfg.InQuietHours(day.Add(12*time.Hour)))
	assert.True(t, cfg.InQuietHours(day.Add(13*time.Hour)))
	assert.True(t, cfg.InQuietHours(day.Add(14*time.Hour+30*time.Minute)))
	assert.False(t, cfg.InQuietHours(day.Add(15*time.Hour)))
}

func TestInQuietHours_WrapsMidnight(t *testing.T) {
	cfg := &MonitoringConfig{
		QuietHoursEnabled: true,
		QuietStartHour:    22,
		QuietEndHour:      7,
	}

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.False(t, cfg.InQuietHours(day.Add(21*time.Hour)))
	assert.True(t, cfg.InQuietHours(day.Add(22*time.Hour)))
	assert.True(t, cfg.InQuietHours(day.Add(23*time.Hour+59*time.Minute)))
	assert.True(t, cfg.InQuietHours(day.Add(3*time.Hour)))
	assert.True(t, cfg.InQuietHours(day.Add(6*time.Hour+59*time.Minute)))
	assert.False(t, cfg.InQuietHours(day.Add(7*time.Hour)))
}

func TestInQuietHours_Disabled(t *testing.T) {
	cfg := &MonitoringConfig{
		QuietHoursEnabled: false,
		QuietStartHour:    22,
		QuietEndHour:      7,
	}
	assert.False(t, cfg.InQuietHours(time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)))
}

func TestBaselineBucket_FoldAndSpread(t *testing.T) {
	var b BaselineBucket
	for _, v := range []float64{100, 110, 90, 105, 95} {
		b.Fold(v)
	}

	assert.Equal(t, int64(5), b.Count)
	assert.InDelta(t, 100.0, b.Mean, 0.001)
	assert.InDelta(t, 7.9057, b.Spread(), 0.001)
}

func TestWeekdayClassOf(t *testing.T) {
	// 2025-06-02 是周一，2025-06-07 是周六
	assert.Equal(t, ClassWeekday, WeekdayClassOf(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, ClassWeekend, WeekdayClassOf(time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, ClassWeekend, WeekdayClassOf(time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)))
}
