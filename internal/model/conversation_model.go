package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Conversation struct {
	Id             uuid.UUID             `gorm:"type:uuid;primaryKey"`
	AssistantId    string                `gorm:"type:varchar(255);not null;index"`
	StartTime      time.Time             `gorm:"not null"`
	LastUpdateTime time.Time             `gorm:"not null;index"`
	Messages       []ConversationMessage `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time             `gorm:"autoCreateTime"`
	DeletedAt      gorm.DeletedAt        `gorm:"index"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationMessage struct {
	Id                     uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ConversationId         uuid.UUID         `gorm:"type:uuid;not null;index"`
	Seq                    int               `gorm:"not null"`
	Role                   string            `gorm:"type:varchar(50);not null"`
	Content                string            `gorm:"type:text;not null"`
	ThinkContent           string            `gorm:"type:text"`
	EditedArticle          string            `gorm:"type:text"`
	EditedArticleRelatedTo string            `gorm:"type:text"`
	OtherData              datatypes.JSONMap `gorm:"type:jsonb"`
	Timestamp              time.Time         `gorm:"not null"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}
