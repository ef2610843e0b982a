package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type ConversationRepository struct {
	// mu makes read-modify-write on a conversation atomic; the cache itself is already safe.
	mu    sync.Mutex
	cache *cache.Cache
}

// NewConversationRepository keeps conversations for ttl after their last write.
// A zero ttl keeps them forever.
func NewConversationRepository(ttl time.Duration) contract.ConversationRepository {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &ConversationRepository{cache: cache.New(ttl, 10*time.Minute)}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conversation.Id == uuid.Nil {
		conversation.Id = uuid.New()
	}
	r.cache.Set(conversation.Id.String(), cloneConversation(conversation), cache.DefaultExpiration)
	return nil
}

func (r *ConversationRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(id.String()); found {
		return cloneConversation(x.(*entity.Conversation)), nil
	}
	return nil, nil
}

func (r *ConversationRepository) FindAllByAssistant(ctx context.Context, assistantId string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Conversation
	for _, item := range r.cache.Items() {
		c := item.Object.(*entity.Conversation)
		if c.AssistantId == assistantId {
			result = append(result, cloneConversation(c))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastUpdateTime.After(result[j].LastUpdateTime)
	})
	return result, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(conversationId.String())
	if !found {
		return fmt.Errorf("%w: %s", contract.ErrConversationNotFound, conversationId)
	}
	c := cloneConversation(x.(*entity.Conversation))
	m := *message
	m.ConversationId = conversationId
	c.Messages = append(c.Messages, &m)
	c.LastUpdateTime = time.Now()
	r.cache.Set(c.Id.String(), c, cache.DefaultExpiration)
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.cache.Delete(id.String())
	return nil
}

func (r *ConversationRepository) DeleteAllByAssistant(ctx context.Context, assistantId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, item := range r.cache.Items() {
		if item.Object.(*entity.Conversation).AssistantId == assistantId {
			r.cache.Delete(key)
		}
	}
	return nil
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.Messages = make([]*entity.Message, len(c.Messages))
	for i, m := range c.Messages {
		cp := *m
		out.Messages[i] = &cp
	}
	return &out
}
