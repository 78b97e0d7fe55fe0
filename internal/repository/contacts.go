package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// ContactsRepository 关怀圈联系人仓库
type ContactsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewContactsRepository 创建联系人仓库
func NewContactsRepository(db *sql.DB, logger *zap.Logger) *ContactsRepository {
	return &ContactsRepository{
		db:     db,
		logger: logger,
	}
}

// GetContacts 获取用户的关怀圈联系人，按通知顺序排列（需验证 tenant_id）
func (r *ContactsRepository) GetContacts(ctx context.Context, tenantID, userID string) ([]models.Contact, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			contact_id,
			name,
			phone,
			position
		FROM wellness_contacts
		WHERE tenant_id = $1
		  AND user_id = $2
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var contact models.Contact
		if err := rows.Scan(
			&contact.ContactID,
			&contact.Name,
			&contact.Phone,
			&contact.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}
