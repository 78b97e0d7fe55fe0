package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wellness/internal/models"
)

func setupMockCasesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *CasesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewCasesRepository(db, zap.NewNop())
	return db, mock, repo
}

func resolvedCase(tenantID string) *models.EscalationCase {
	openedAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	resolvedAt := openedAt.Add(90 * time.Second)
	return &models.EscalationCase{
		CaseID:   uuid.New().String(),
		TenantID: tenantID,
		UserID:   uuid.New().String(),
		Event: models.DetectionEvent{
			EventID:     uuid.New().String(),
			Kind:        models.EventFallCandidate,
			Urgency:     models.UrgencyHigh,
			Timestamp:   openedAt,
			Description: "impact followed by stillness",
			IsHome:      true,
		},
		State:    models.CaseResolved,
		OpenedAt: openedAt,
		Deadline: openedAt.Add(60 * time.Second),
		Deliveries: []models.ContactDelivery{
			{Contact: models.Contact{ContactID: "c1", Name: "Alice", Phone: "+15550001", Position: 1}, Status: models.DeliverySent},
		},
		Resolution: models.ResolutionContactsNotified,
		ResolvedAt: &resolvedAt,
	}
}

func TestArchiveCase_Success(t *testing.T) {
	db, mock, repo := setupMockCasesDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	escalationCase := resolvedCase(tenantID)

	mock.ExpectExec(`INSERT INTO wellness_cases`).
		WithArgs(
			escalationCase.CaseID, tenantID, escalationCase.UserID,
			escalationCase.Event.EventID, "fall_candidate", 3,
			"impact followed by stillness", true,
			escalationCase.OpenedAt, escalationCase.Deadline,
			sqlmock.AnyArg(), false, "contacts_notified", escalationCase.ResolvedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.ArchiveCase(ctx, tenantID, escalationCase)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCase_RejectsUnresolvedCase(t *testing.T) {
	db, mock, repo := setupMockCasesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	escalationCase := resolvedCase(tenantID)
	escalationCase.State = models.CaseAwaitingUser

	err := repo.ArchiveCase(context.Background(), tenantID, escalationCase)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "only resolved cases")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCase_TenantMismatch(t *testing.T) {
	db, mock, repo := setupMockCasesDB(t)
	defer db.Close()

	escalationCase := resolvedCase(uuid.New().String())

	err := repo.ArchiveCase(context.Background(), uuid.New().String(), escalationCase)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must match")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCases_Success(t *testing.T) {
	db, mock, repo := setupMockCasesDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	startTime := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	endTime := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	openedAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	resolvedAt := openedAt.Add(90 * time.Second)

	rows := sqlmock.NewRows([]string{
		"case_id", "user_id", "event_kind", "urgency", "event_description",
		"is_home", "opened_at", "deliveries", "partial_failure", "resolution", "resolved_at",
	}).AddRow(
		"case-1", "user-1", "fall_candidate", 3, "impact followed by stillness",
		true, openedAt, []byte(`[{"contact":{"contact_id":"c1","name":"Alice","phone":"+15550001","position":1},"status":"sent"}]`),
		false, "contacts_notified", resolvedAt,
	)

	mock.ExpectQuery(`SELECT(.|\n)*FROM wellness_cases`).
		WithArgs(tenantID, startTime, endTime).
		WillReturnRows(rows)

	cases, err := repo.ListCases(ctx, tenantID, startTime, endTime)

	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case-1", cases[0].CaseID)
	assert.Equal(t, "fall_candidate", cases[0].EventKind)
	require.Len(t, cases[0].Deliveries, 1)
	assert.Equal(t, models.DeliverySent, cases[0].Deliveries[0].Status)
	require.NotNil(t, cases[0].ResolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCases_InvalidTenantID(t *testing.T) {
	db, mock, repo := setupMockCasesDB(t)
	defer db.Close()

	cases, err := repo.ListCases(context.Background(), "", time.Now().Add(-time.Hour), time.Now())

	assert.Error(t, err)
	assert.Nil(t, cases)

	require.NoError(t, mock.ExpectationsWereMet())
}
