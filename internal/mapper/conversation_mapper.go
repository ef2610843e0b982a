package mapper

import (
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/model"

	"gorm.io/datatypes"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}
	messages := make([]*entity.Message, 0, len(c.Messages))
	for i := range c.Messages {
		messages = append(messages, m.MessageToEntity(&c.Messages[i]))
	}
	return &entity.Conversation{
		Id:             c.Id,
		AssistantId:    c.AssistantId,
		Messages:       messages,
		StartTime:      c.StartTime,
		LastUpdateTime: c.LastUpdateTime,
	}
}

// ToModel maps the conversation row only; messages are written separately.
func (m *ConversationMapper) ToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}
	return &model.Conversation{
		Id:             c.Id,
		AssistantId:    c.AssistantId,
		StartTime:      c.StartTime,
		LastUpdateTime: c.LastUpdateTime,
	}
}

func (m *ConversationMapper) MessageToEntity(msg *model.ConversationMessage) *entity.Message {
	if msg == nil {
		return nil
	}
	var otherData map[string]interface{}
	if len(msg.OtherData) > 0 {
		otherData = map[string]interface{}(msg.OtherData)
	}
	return &entity.Message{
		Id:                     msg.Id,
		ConversationId:         msg.ConversationId,
		Role:                   msg.Role,
		Content:                msg.Content,
		ThinkContent:           msg.ThinkContent,
		EditedArticle:          msg.EditedArticle,
		EditedArticleRelatedTo: msg.EditedArticleRelatedTo,
		OtherData:              otherData,
		Timestamp:              msg.Timestamp,
	}
}

func (m *ConversationMapper) MessageToModel(msg *entity.Message, seq int) *model.ConversationMessage {
	if msg == nil {
		return nil
	}
	var otherData datatypes.JSONMap
	if msg.OtherData != nil {
		otherData = datatypes.JSONMap(msg.OtherData)
	}
	return &model.ConversationMessage{
		Id:                     msg.Id,
		ConversationId:         msg.ConversationId,
		Seq:                    seq,
		Role:                   msg.Role,
		Content:                msg.Content,
		ThinkContent:           msg.ThinkContent,
		EditedArticle:          msg.EditedArticle,
		EditedArticleRelatedTo: msg.EditedArticleRelatedTo,
		OtherData:              otherData,
		Timestamp:              msg.Timestamp,
	}
}
