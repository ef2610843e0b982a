package implementation

import (
	"context"
	"sync"
	"testing"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

func newRedisConversations(t *testing.T, ttl time.Duration) (contract.ConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	s := setupTestRedis(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewConversationRepositoryRedis(client, ttl), s
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}

func TestRedisConversationLifecycle(t *testing.T) {
	repo, _ := newRedisConversations(t, 0)
	ctx := context.Background()

	older := &entity.Conversation{AssistantId: "a1", StartTime: time.Now(), LastUpdateTime: time.Now().Add(-time.Hour)}
	newer := &entity.Conversation{AssistantId: "a1", StartTime: time.Now(), LastUpdateTime: time.Now()}
	other := &entity.Conversation{AssistantId: "a2", StartTime: time.Now(), LastUpdateTime: time.Now()}
	for _, c := range []*entity.Conversation{older, newer, other} {
		require.NoError(t, repo.Create(ctx, c))
		assert.NotEqual(t, uuid.Nil, c.Id)
	}

	list, err := repo.FindAllByAssistant(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.Id, list[0].Id)

	reply := entity.NewAssistantMessage(older.Id)
	reply.Content = "hello"
	reply.OtherData = map[string]interface{}{"score": float64(3)}
	require.NoError(t, repo.AppendMessage(ctx, older.Id, reply))

	list, err = repo.FindAllByAssistant(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, older.Id, list[0].Id, "append moves the conversation to the front")
	require.Len(t, list[0].Messages, 1)
	assert.Equal(t, "hello", list[0].Messages[0].Content)
	assert.Equal(t, float64(3), list[0].Messages[0].OtherData["score"])

	require.NoError(t, repo.Delete(ctx, older.Id))
	got, err := repo.FindById(ctx, older.Id)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.DeleteAllByAssistant(ctx, "a1"))
	list, err = repo.FindAllByAssistant(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = repo.FindAllByAssistant(ctx, "a2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRedisAppendToUnknownConversation(t *testing.T) {
	repo, _ := newRedisConversations(t, 0)
	err := repo.AppendMessage(context.Background(), uuid.New(), entity.NewUserMessage(uuid.Nil, "hi"))
	assert.ErrorIs(t, err, contract.ErrConversationNotFound)
}

func TestRedisConcurrentAppendsAreNotLost(t *testing.T) {
	repo, _ := newRedisConversations(t, 0)
	ctx := context.Background()
	conv := &entity.Conversation{AssistantId: "a1", StartTime: time.Now(), LastUpdateTime: time.Now()}
	require.NoError(t, repo.Create(ctx, conv))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendMessage(ctx, conv.Id, entity.NewUserMessage(conv.Id, "x")))
		}()
	}
	wg.Wait()

	got, err := repo.FindById(ctx, conv.Id)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 5)
}

func TestRedisExpiredConversationsDropOutOfIndex(t *testing.T) {
	repo, s := newRedisConversations(t, time.Minute)
	ctx := context.Background()
	conv := &entity.Conversation{AssistantId: "a1", StartTime: time.Now(), LastUpdateTime: time.Now()}
	require.NoError(t, repo.Create(ctx, conv))

	s.FastForward(2 * time.Minute)

	list, err := repo.FindAllByAssistant(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisCredentialRepository(t *testing.T) {
	s := setupTestRedis(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	require.NoError(t, err)
	defer client.Close()

	repo := NewCredentialRepositoryRedis(client)
	ctx := context.Background()

	pair, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, pair)

	want := &entity.TokenPair{
		AccessToken:   "a",
		AccessExpiry:  time.Now().Add(time.Minute).Unix(),
		RefreshToken:  "r",
		RefreshExpiry: time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.InDelta(t, time.Hour.Seconds(), s.TTL("credentials").Seconds(), 5)

	require.NoError(t, repo.Clear(ctx))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
