package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// MonitoringConfigsRepository 用户监测配置仓库
type MonitoringConfigsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMonitoringConfigsRepository 创建监测配置仓库
func NewMonitoringConfigsRepository(db *sql.DB, logger *zap.Logger) *MonitoringConfigsRepository {
	return &MonitoringConfigsRepository{
		db:     db,
		logger: logger,
	}
}

// GetConfig 获取用户监测配置（需验证 tenant_id；不存在返回 nil, nil，由调用方落默认值）
// 返回前统一做合法化（阈值钳制到 2h–12h 并 30 分钟对齐）
func (r *MonitoringConfigsRepository) GetConfig(ctx context.Context, tenantID, userID string) (*models.MonitoringConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			user_id,
			silence_threshold_minutes,
			quiet_hours_enabled,
			quiet_start_hour,
			quiet_end_hour,
			night_owl,
			fall_detection_enabled,
			inactivity_alerts_enabled,
			updated_at
		FROM wellness_monitoring_configs
		WHERE tenant_id = $1
		  AND user_id = $2
	`

	var mc models.MonitoringConfig
	err := r.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&mc.UserID,
		&mc.SilenceThresholdMinutes,
		&mc.QuietHoursEnabled,
		&mc.QuietStartHour,
		&mc.QuietEndHour,
		&mc.NightOwl,
		&mc.FallDetectionEnabled,
		&mc.InactivityAlertsEnabled,
		&mc.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 尚未配置过，由调用方落默认值
		}
		return nil, fmt.Errorf("failed to get monitoring config: %w", err)
	}

	mc.Normalize()
	return &mc, nil
}

// SaveConfig 保存用户监测配置（upsert，需验证 tenant_id）
// 写入前统一做合法化，保证库里永远是合法值
func (r *MonitoringConfigsRepository) SaveConfig(ctx context.Context, tenantID string, mc *models.MonitoringConfig) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if mc == nil {
		return fmt.Errorf("config is required")
	}
	if mc.UserID == "" {
		return fmt.Errorf("config.user_id is required")
	}

	mc.Normalize()

	query := `
		INSERT INTO wellness_monitoring_configs (
			tenant_id,
			user_id,
			silence_threshold_minutes,
			quiet_hours_enabled,
			quiet_start_hour,
			quiet_end_hour,
			night_owl,
			fall_detection_enabled,
			inactivity_alerts_enabled,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP
		)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			silence_threshold_minutes = EXCLUDED.silence_threshold_minutes,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_start_hour = EXCLUDED.quiet_start_hour,
			quiet_end_hour = EXCLUDED.quiet_end_hour,
			night_owl = EXCLUDED.night_owl,
			fall_detection_enabled = EXCLUDED.fall_detection_enabled,
			inactivity_alerts_enabled = EXCLUDED.inactivity_alerts_enabled,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		tenantID,
		mc.UserID,
		mc.SilenceThresholdMinutes,
		mc.QuietHoursEnabled,
		mc.QuietStartHour,
		mc.QuietEndHour,
		mc.NightOwl,
		mc.FallDetectionEnabled,
		mc.InactivityAlertsEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save monitoring config: %w", err)
	}

	return nil
}
