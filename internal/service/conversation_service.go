package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/google/uuid"
)

const conversationModule = "ConversationService"

var ErrAssistantRequired = errors.New("assistant id is required")

type IConversationService interface {
	Create(ctx context.Context, assistantId string) (*entity.Conversation, error)
	// Latest returns the most recently updated conversation, creating one when none exists.
	Latest(ctx context.Context, assistantId string) (*entity.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	List(ctx context.Context, assistantId string) ([]*entity.Conversation, error)
	AddMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context, assistantId string) error
}

type conversationService struct {
	repo   contract.ConversationRepository
	logger logger.ILogger
}

func NewConversationService(repo contract.ConversationRepository, log logger.ILogger) IConversationService {
	return &conversationService{repo: repo, logger: log}
}

func (s *conversationService) Create(ctx context.Context, assistantId string) (*entity.Conversation, error) {
	if assistantId == "" {
		return nil, ErrAssistantRequired
	}
	now := time.Now()
	conversation := &entity.Conversation{
		Id:             uuid.New(),
		AssistantId:    assistantId,
		Messages:       []*entity.Message{},
		StartTime:      now,
		LastUpdateTime: now,
	}
	if err := s.repo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info(conversationModule, "Conversation created", map[string]interface{}{
		"conversation_id": conversation.Id,
		"assistant_id":    assistantId,
	})
	return conversation, nil
}

func (s *conversationService) Latest(ctx context.Context, assistantId string) (*entity.Conversation, error) {
	conversations, err := s.List(ctx, assistantId)
	if err != nil {
		return nil, err
	}
	if len(conversations) > 0 {
		return conversations[0], nil
	}
	return s.Create(ctx, assistantId)
}

func (s *conversationService) Get(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	conversation, err := s.repo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, contract.ErrConversationNotFound
	}
	return conversation, nil
}

func (s *conversationService) List(ctx context.Context, assistantId string) ([]*entity.Conversation, error) {
	if assistantId == "" {
		return nil, ErrAssistantRequired
	}
	return s.repo.FindAllByAssistant(ctx, assistantId)
}

func (s *conversationService) AddMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error {
	if message.Id == uuid.Nil {
		message.Id = uuid.New()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.ConversationId = conversationId
	return s.repo.AppendMessage(ctx, conversationId, message)
}

func (s *conversationService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(conversationModule, "Conversation deleted", map[string]interface{}{"conversation_id": id})
	return nil
}

func (s *conversationService) DeleteAll(ctx context.Context, assistantId string) error {
	if assistantId == "" {
		return ErrAssistantRequired
	}
	if err := s.repo.DeleteAllByAssistant(ctx, assistantId); err != nil {
		return err
	}
	s.logger.Info(conversationModule, "All conversations deleted", map[string]interface{}{"assistant_id": assistantId})
	return nil
}
