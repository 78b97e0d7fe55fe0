package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// BaselinesRepository 活动基线仓库
// 基线必须跨重启存活，否则每次发版都要重新学习 14 天
type BaselinesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBaselinesRepository 创建活动基线仓库
func NewBaselinesRepository(db *sql.DB, logger *zap.Logger) *BaselinesRepository {
	return &BaselinesRepository{
		db:     db,
		logger: logger,
	}
}

// GetBaseline 获取用户基线（需验证 tenant_id；不存在返回 nil, nil）
func (r *BaselinesRepository) GetBaseline(ctx context.Context, tenantID, userID string) (*models.BaselineProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			user_id,
			started_at,
			buckets,
			updated_at
		FROM wellness_baselines
		WHERE tenant_id = $1
		  AND user_id = $2
	`

	var profile models.BaselineProfile
	var buckets []byte

	err := r.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&profile.UserID,
		&profile.StartedAt,
		&buckets,
		&profile.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 尚无基线，从零开始学习
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	if len(buckets) > 0 {
		if err := json.Unmarshal(buckets, &profile.Buckets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal baseline buckets: %w", err)
		}
	}

	return &profile, nil
}

// SaveBaseline 保存用户基线（upsert，需验证 tenant_id）
func (r *BaselinesRepository) SaveBaseline(ctx context.Context, tenantID string, profile *models.BaselineProfile) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if profile == nil {
		return fmt.Errorf("profile is required")
	}
	if profile.UserID == "" {
		return fmt.Errorf("profile.user_id is required")
	}

	buckets, err := json.Marshal(profile.Buckets)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline buckets: %w", err)
	}

	query := `
		INSERT INTO wellness_baselines (
			tenant_id,
			user_id,
			started_at,
			buckets,
			updated_at
		) VALUES (
			$1, $2, $3, $4, CURRENT_TIMESTAMP
		)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			buckets = EXCLUDED.buckets,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = r.db.ExecContext(ctx, query, tenantID, profile.UserID, profile.StartedAt, buckets)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}

	return nil
}
