package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// CasesRepository 升级案例归档仓库
// 只存终态案例（resolved），供事后审计与导出
type CasesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCasesRepository 创建案例归档仓库
func NewCasesRepository(db *sql.DB, logger *zap.Logger) *CasesRepository {
	return &CasesRepository{
		db:     db,
		logger: logger,
	}
}

// ArchiveCase 归档终态案例（需验证 tenant_id）
func (r *CasesRepository) ArchiveCase(ctx context.Context, tenantID string, escalationCase *models.EscalationCase) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if escalationCase == nil {
		return fmt.Errorf("case is required")
	}
	if escalationCase.TenantID != tenantID {
		return fmt.Errorf("case.tenant_id must match tenant_id parameter")
	}
	if escalationCase.State != models.CaseResolved {
		return fmt.Errorf("only resolved cases can be archived: case_id=%s, state=%s",
			escalationCase.CaseID, escalationCase.State)
	}

	deliveries, err := json.Marshal(escalationCase.Deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}

	query := `
		INSERT INTO wellness_cases (
			case_id,
			tenant_id,
			user_id,
			event_id,
			event_kind,
			urgency,
			event_description,
			is_home,
			opened_at,
			deadline,
			deliveries,
			partial_failure,
			resolution,
			resolved_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, CURRENT_TIMESTAMP
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		escalationCase.CaseID,
		escalationCase.TenantID,
		escalationCase.UserID,
		escalationCase.Event.EventID,
		string(escalationCase.Event.Kind),
		int(escalationCase.Event.Urgency),
		escalationCase.Event.Description,
		escalationCase.Event.IsHome,
		escalationCase.OpenedAt,
		escalationCase.Deadline,
		deliveries,
		escalationCase.PartialFailure,
		string(escalationCase.Resolution),
		escalationCase.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive case: %w", err)
	}

	return nil
}

// ArchivedCase 归档案例行（导出用）
type ArchivedCase struct {
	CaseID         string
	UserID         string
	EventKind      string
	Urgency        int
	Description    string
	IsHome         bool
	OpenedAt       time.Time
	Deliveries     []models.ContactDelivery
	PartialFailure bool
	Resolution     string
	ResolvedAt     *time.Time
}

// ListCases 查询时间段内的归档案例，按开案时间倒序（需验证 tenant_id）
func (r *CasesRepository) ListCases(ctx context.Context, tenantID string, startTime, endTime time.Time) ([]*ArchivedCase, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT
			case_id,
			user_id,
			event_kind,
			urgency,
			event_description,
			is_home,
			opened_at,
			deliveries,
			partial_failure,
			resolution,
			resolved_at
		FROM wellness_cases
		WHERE tenant_id = $1
		  AND opened_at >= $2
		  AND opened_at <= $3
		ORDER BY opened_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	cases := []*ArchivedCase{}
	for rows.Next() {
		var c ArchivedCase
		var deliveries []byte
		var resolvedAt sql.NullTime

		if err := rows.Scan(
			&c.CaseID,
			&c.UserID,
			&c.EventKind,
			&c.Urgency,
			&c.Description,
			&c.IsHome,
			&c.OpenedAt,
			&deliveries,
			&c.PartialFailure,
			&c.Resolution,
			&resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}

		if resolvedAt.Valid {
			c.ResolvedAt = &resolvedAt.Time
		}
		if len(deliveries) > 0 {
			if err := json.Unmarshal(deliveries, &c.Deliveries); err != nil {
				return nil, fmt.Errorf("failed to unmarshal deliveries: %w", err)
			}
		}

		cases = append(cases, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cases: %w", err)
	}

	return cases, nil
}
