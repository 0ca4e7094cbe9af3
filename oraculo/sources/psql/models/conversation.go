package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation is the durable record of one session.
type Conversation struct {
	ID                 uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	SessionID          string    `json:"session_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	OwnerID            string    `json:"owner_id" gorm:"type:varchar(255);not null;index"`
	DocumentType       string    `json:"document_type" gorm:"type:varchar(50);not null"`
	NormalizedDocument string    `json:"normalized_document" gorm:"type:text;not null"`
	IsSummarized       bool      `json:"is_summarized" gorm:"not null;default:false"`
	Provider           string    `json:"provider" gorm:"type:varchar(100);not null"`
	Model              string    `json:"model" gorm:"type:varchar(255);not null"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationTurn is one transcript entry; Seq orders turns within a session.
type ConversationTurn struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID string            `json:"session_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_turn_session_seq"`
	Seq       int               `json:"seq" gorm:"not null;uniqueIndex:idx_turn_session_seq"`
	Role      string            `json:"role" gorm:"type:varchar(50);not null"`
	Content   string            `json:"content" gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
}

func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

func (t *ConversationTurn) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
