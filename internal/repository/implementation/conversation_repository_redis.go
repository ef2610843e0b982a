package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 10

// ConversationRepositoryRedis stores each conversation as one JSON value and
// keeps a per-assistant sorted set scored by last update time.
type ConversationRepositoryRedis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewConversationRepositoryRedis expires idle conversations after ttl; zero keeps them.
func NewConversationRepositoryRedis(client *redis.Client, ttl time.Duration) contract.ConversationRepository {
	return &ConversationRepositoryRedis{client: client, prefix: "conversation:", ttl: ttl}
}

func (r *ConversationRepositoryRedis) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

func (r *ConversationRepositoryRedis) indexKey(assistantId string) string {
	return r.prefix + "assistant:" + assistantId
}

func (r *ConversationRepositoryRedis) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.Id == uuid.Nil {
		conversation.Id = uuid.New()
	}
	data, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(conversation.Id), data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(conversation.AssistantId), redis.Z{
			Score:  float64(conversation.LastUpdateTime.UnixMilli()),
			Member: conversation.Id.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepositoryRedis) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	return r.get(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *ConversationRepositoryRedis) get(ctx context.Context, c getter, id uuid.UUID) (*entity.Conversation, error) {
	data, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var conversation entity.Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepositoryRedis) FindAllByAssistant(ctx context.Context, assistantId string) ([]*entity.Conversation, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(assistantId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := make([]*entity.Conversation, 0, len(ids))
	var stale []interface{}
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			stale = append(stale, raw)
			continue
		}
		conversation, err := r.FindById(ctx, id)
		if err != nil {
			return nil, err
		}
		if conversation == nil {
			// expired underneath the index
			stale = append(stale, raw)
			continue
		}
		result = append(result, conversation)
	}

	if len(stale) > 0 {
		r.client.ZRem(ctx, r.indexKey(assistantId), stale...)
	}
	return result, nil
}

func (r *ConversationRepositoryRedis) AppendMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error {
	key := r.key(conversationId)

	txf := func(tx *redis.Tx) error {
		conversation, err := r.get(ctx, tx, conversationId)
		if err != nil {
			return err
		}
		if conversation == nil {
			return fmt.Errorf("%w: %s", contract.ErrConversationNotFound, conversationId)
		}

		message.ConversationId = conversationId
		conversation.Messages = append(conversation.Messages, message)
		conversation.LastUpdateTime = time.Now()

		data, err := json.Marshal(conversation)
		if err != nil {
			return fmt.Errorf("marshal conversation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			pipe.ZAdd(ctx, r.indexKey(conversation.AssistantId), redis.Z{
				Score:  float64(conversation.LastUpdateTime.UnixMilli()),
				Member: conversationId.String(),
			})
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("append message: too much contention on %s", key)
}

func (r *ConversationRepositoryRedis) Delete(ctx context.Context, id uuid.UUID) error {
	conversation, err := r.FindById(ctx, id)
	if err != nil {
		return err
	}
	if conversation == nil {
		return nil
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(id))
		pipe.ZRem(ctx, r.indexKey(conversation.AssistantId), id.String())
		return nil
	})
	return err
}

func (r *ConversationRepositoryRedis) DeleteAllByAssistant(ctx context.Context, assistantId string) error {
	ids, err := r.client.ZRange(ctx, r.indexKey(assistantId), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.prefix+id)
	}
	keys = append(keys, r.indexKey(assistantId))
	return r.client.Del(ctx, keys...).Err()
}
