package contract

import (
	"context"
	"errors"

	"ai-workspace-editor/internal/entity"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	// FindById returns nil, nil when the conversation does not exist.
	FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	// FindAllByAssistant returns conversations newest LastUpdateTime first.
	FindAllByAssistant(ctx context.Context, assistantId string) ([]*entity.Conversation, error)
	// AppendMessage adds message to the end of the history and bumps LastUpdateTime.
	// It fails with ErrConversationNotFound for an unknown conversation.
	AppendMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllByAssistant(ctx context.Context, assistantId string) error
}
