package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// streamData 取出流消息的 data 字段（字段对顺序不定）
func streamData(t *testing.T, values []string) string {
	require.Equal(t, 0, len(values)%2)
	for i := 0; i < len(values); i += 2 {
		if values[i] == "data" {
			return values[i+1]
		}
	}
	t.Fatal("stream entry has no data field")
	return ""
}

func newTestNotifier(t *testing.T) (*Notifier, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewNotifier(cfg, client, NewRedisKVStore(client), zap.NewNop()), mr
}

func TestNotifier_PublishCaseUpdateAppendsToStream(t *testing.T) {
	n, mr := newTestNotifier(t)
	ctx := context.Background()

	escalationCase := &models.EscalationCase{
		CaseID:   "case-1",
		TenantID: "tenant-1",
		UserID:   "user-1",
		State:    models.CaseAwaitingUser,
		Event: models.DetectionEvent{
			EventID: "ev-1",
			Kind:    models.EventFallCandidate,
			Urgency: models.UrgencyHigh,
		},
	}

	require.NoError(t, n.PublishCaseUpdate(ctx, escalationCase))

	entries, err := mr.Stream("wellness:events")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal([]byte(streamData(t, entries[0].Values)), &msg))
	assert.Equal(t, "case_update", msg.Type)
	assert.Equal(t, "user-1", msg.UserID)
}

func TestNotifier_PublishCheckInPrompt(t *testing.T) {
	n, mr := newTestNotifier(t)
	ctx := context.Background()

	prompt := &models.CheckInPrompt{
		UserID: "user-1",
		At:     time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC),
	}
	require.NoError(t, n.PublishCheckInPrompt(ctx, prompt))

	entries, err := mr.Stream("wellness:events")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal([]byte(streamData(t, entries[0].Values)), &msg))
	assert.Equal(t, "check_in_prompt", msg.Type)
}

func TestNotifier_UpdateStatusCachesWithTTL(t *testing.T) {
	n, mr := newTestNotifier(t)
	ctx := context.Background()

	days := 3
	status := &models.EngineStatus{
		UserID:          "user-1",
		DaysIntoLearning: &days,
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, n.UpdateStatus(ctx, status))

	key := "wellness:user:user-1:status"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 120*time.Second, mr.TTL(key))

	var cached models.EngineStatus
	val, err := mr.Get(key)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(val), &cached))
	require.NotNil(t, cached.DaysIntoLearning)
	assert.Equal(t, 3, *cached.DaysIntoLearning)
}

func TestNotifier_ActiveCaseMarkerRoundTrip(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx := context.Background()

	// 无标记 → nil, nil
	got, err := n.GetActiveCase(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	escalationCase := &models.EscalationCase{
		CaseID: "case-1",
		UserID: "user-1",
		State:  models.CaseAwaitingUser,
	}
	require.NoError(t, n.SetActiveCase(ctx, escalationCase))

	got, err = n.GetActiveCase(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "case-1", got.CaseID)

	require.NoError(t, n.ClearActiveCase(ctx, "user-1"))
	got, err = n.GetActiveCase(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
