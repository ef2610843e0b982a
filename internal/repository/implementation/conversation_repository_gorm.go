package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/mapper"
	"ai-workspace-editor/internal/model"
	"ai-workspace-editor/internal/repository/contract"
	"ai-workspace-editor/internal/repository/scope"
	"ai-workspace-editor/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepositoryGorm struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepositoryGorm(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryGorm{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

// AutoMigrate creates the conversation tables.
func (r *ConversationRepositoryGorm) AutoMigrate() error {
	return r.db.AutoMigrate(&model.Conversation{}, &model.ConversationMessage{})
}

func (r *ConversationRepositoryGorm) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationRepositoryGorm) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.Id == uuid.Nil {
		conversation.Id = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r.mapper.ToModel(conversation)).Error; err != nil {
			return err
		}
		for i, msg := range conversation.Messages {
			msg.ConversationId = conversation.Id
			if err := tx.Create(r.mapper.MessageToModel(msg, i+1)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ConversationRepositoryGorm) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	var m model.Conversation
	query := r.applySpecifications(r.db.WithContext(ctx).Scopes(scope.MessagesInOrder), specification.ByID{ID: id})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConversationRepositoryGorm) FindAllByAssistant(ctx context.Context, assistantId string) ([]*entity.Conversation, error) {
	var models []*model.Conversation
	query := r.applySpecifications(
		r.db.WithContext(ctx).Scopes(scope.MessagesInOrder, scope.OrderByLastUpdateDesc),
		specification.ByAssistantID{AssistantID: assistantId},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*entity.Conversation, 0, len(models))
	for _, m := range models {
		result = append(result, r.mapper.ToEntity(m))
	}
	return result, nil
}

func (r *ConversationRepositoryGorm) AppendMessage(ctx context.Context, conversationId uuid.UUID, message *entity.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock the conversation row
		var conv model.Conversation
		if err := r.applySpecifications(tx, specification.ByID{ID: conversationId}).
			Clauses(forUpdate()).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", contract.ErrConversationNotFound, conversationId)
			}
			return err
		}

		// 2. Next sequence number
		var maxSeq int
		if err := r.applySpecifications(tx.Model(&model.ConversationMessage{}),
			specification.ByConversationID{ConversationID: conversationId}).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}

		// 3. Insert and bump
		message.ConversationId = conversationId
		if err := tx.Create(r.mapper.MessageToModel(message, maxSeq+1)).Error; err != nil {
			return err
		}
		return tx.Model(&conv).Update("last_update_time", time.Now()).Error
	})
}

func (r *ConversationRepositoryGorm) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ConversationMessage{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Conversation{}, "id = ?", id).Error
	})
}

func (r *ConversationRepositoryGorm) DeleteAllByAssistant(ctx context.Context, assistantId string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Unscoped().Model(&model.Conversation{}).Select("id").Where("assistant_id = ?", assistantId)
		if err := tx.Where("conversation_id IN (?)", ids).Delete(&model.ConversationMessage{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("assistant_id = ?", assistantId).Delete(&model.Conversation{}).Error
	})
}

func forUpdate() clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}
