package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id             uuid.UUID  `json:"id"`
	AssistantId    string     `json:"assistant_id"`
	Messages       []*Message `json:"messages"`
	StartTime      time.Time  `json:"start_time"`
	LastUpdateTime time.Time  `json:"last_update_time"`
}
