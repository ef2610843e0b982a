package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/google/uuid"
)

const conversationCacheFile = "assistant_cache"

// ConversationRepositoryFile keeps every conversation in one JSON array inside
// the workspace, so history travels with the documents.
type ConversationRepositoryFile struct {
	mu   sync.Mutex
	path string
}

func NewConversationRepositoryFile(ws *Workspace) contract.ConversationRepository {
	return &ConversationRepositoryFile{path: filepath.Join(ws.Root(), conversationCacheFile)}
}

func (r *ConversationRepositoryFile) load() ([]*entity.Conversation, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return []*entity.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", conversationCacheFile, err)
	}
	var conversations []*entity.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("parse %s: %w", conversationCacheFile, err)
	}
	return conversations, nil
}

func (r *ConversationRepositoryFile) save(conversations []*entity.Conversation) error {
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(r.path, data)
}

func (r *ConversationRepositoryFile) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := r.load()
	if err != nil {
		return err
	}
	if conversation.Id == uuid.Nil {
		conversation.Id = uuid.New()
	}
	cp := *conversation
	return r.save(append(conversations, &cp))
}

func (r *ConversationRepositoryFile) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, c := range conversations {
		if c.Id == id {
			return c, nil
		}
	}
	return nil, nil
}

func (r *ConversationRepositoryFile) FindAllByAssistant(ctx context.Context, assistantId string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := r.load()
	if err != nil {
		return nil, err
	}
	result := make([]*entity.Conversation, 0)
	for _, c := range conversations {
		if c.AssistantId == assistantId {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastUpdateTime.After(result[j].LastUpdateTime)
	})
	return result, nil
}

func (r *ConversationRepositoryFile) AppendMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := r.load()
	if err != nil {
		return err
	}
	for _, c := range conversations {
		if c.Id == conversationId {
			message.ConversationId = conversationId
			c.Messages = append(c.Messages, message)
			c.LastUpdateTime = time.Now()
			return r.save(conversations)
		}
	}
	return fmt.Errorf("%w: %s", contract.ErrConversationNotFound, conversationId)
}

func (r *ConversationRepositoryFile) Delete(ctx context.Context, id uuid.UUID) error {
	return r.removeWhere(func(c *entity.Conversation) bool { return c.Id == id })
}

func (r *ConversationRepositoryFile) DeleteAllByAssistant(ctx context.Context, assistantId string) error {
	return r.removeWhere(func(c *entity.Conversation) bool { return c.AssistantId == assistantId })
}

func (r *ConversationRepositoryFile) removeWhere(match func(c *entity.Conversation) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := r.load()
	if err != nil {
		return err
	}
	kept := conversations[:0]
	for _, c := range conversations {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	return r.save(kept)
}
