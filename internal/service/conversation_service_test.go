package service

import (
	"context"
	"testing"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"
	"ai-workspace-editor/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConversationService() IConversationService {
	return NewConversationService(memory.NewConversationRepository(0), logger.NewNopLogger())
}

func TestLatestCreatesWhenEmpty(t *testing.T) {
	svc := newTestConversationService()
	ctx := context.Background()

	first, err := svc.Latest(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", first.AssistantId)
	assert.Empty(t, first.Messages)

	again, err := svc.Latest(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)
}

func TestLatestFollowsLastUpdate(t *testing.T) {
	svc := newTestConversationService()
	ctx := context.Background()

	older, err := svc.Create(ctx, "a1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := svc.Create(ctx, "a1")
	require.NoError(t, err)

	latest, err := svc.Latest(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, newer.Id, latest.Id)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.AddMessage(ctx, older.Id, &entity.Message{Role: entity.RoleUser, Content: "bump"}))

	latest, err = svc.Latest(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, older.Id, latest.Id)
	require.Len(t, latest.Messages, 1)
	assert.NotEqual(t, uuid.Nil, latest.Messages[0].Id)
	assert.Equal(t, older.Id, latest.Messages[0].ConversationId)
	assert.False(t, latest.Messages[0].Timestamp.IsZero())
}

func TestListIsScopedToAssistant(t *testing.T) {
	svc := newTestConversationService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "a1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "a1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "a2")
	require.NoError(t, err)

	list, err := svc.List(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteAll(ctx, "a1"))
	list, err = svc.List(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, "a2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteAndGet(t *testing.T) {
	svc := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "a1")
	require.NoError(t, err)

	got, err := svc.Get(ctx, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, conv.Id, got.Id)

	require.NoError(t, svc.Delete(ctx, conv.Id))
	_, err = svc.Get(ctx, conv.Id)
	assert.ErrorIs(t, err, contract.ErrConversationNotFound)

	err = svc.AddMessage(ctx, conv.Id, &entity.Message{Role: entity.RoleUser, Content: "late"})
	assert.ErrorIs(t, err, contract.ErrConversationNotFound)
}

func TestAssistantIdIsRequired(t *testing.T) {
	svc := newTestConversationService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "")
	assert.ErrorIs(t, err, ErrAssistantRequired)
	_, err = svc.Latest(ctx, "")
	assert.ErrorIs(t, err, ErrAssistantRequired)
	assert.ErrorIs(t, svc.DeleteAll(ctx, ""), ErrAssistantRequired)
}
