package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Id                     uuid.UUID              `json:"id"`
	ConversationId         uuid.UUID              `json:"conversation_id"`
	Role                   string                 `json:"role"`
	Content                string                 `json:"content"`
	ThinkContent           string                 `json:"think_content,omitempty"`
	EditedArticle          string                 `json:"edited_article,omitempty"`
	EditedArticleRelatedTo string                 `json:"edited_article_related_to,omitempty"`
	OtherData              map[string]interface{} `json:"other_data,omitempty"`
	Timestamp              time.Time              `json:"timestamp"`
}

func NewUserMessage(conversationId uuid.UUID, content string) *Message {
	return &Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Role:           RoleUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

func NewAssistantMessage(conversationId uuid.UUID) *Message {
	return &Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Role:           RoleAssistant,
		Timestamp:      time.Now(),
	}
}
