package dao

import (
	"context"
	"errors"
	"time"

	"oraculo/oraculo/sources/psql/models"

	"gorm.io/gorm"
)

type ConversationDAO struct {
	DB *gorm.DB
}

func NewConversationDAO(db *gorm.DB) *ConversationDAO {
	return &ConversationDAO{DB: db}
}

// UpsertConversation replaces the conversation and its whole transcript.
func (dao *ConversationDAO) UpsertConversation(ctx context.Context, conv *models.Conversation, turns []models.ConversationTurn) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", conv.SessionID).Delete(&models.ConversationTurn{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", conv.SessionID).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		conv.ID = 0
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return createTurns(tx, conv.SessionID, 0, turns)
	})
}

// AppendTurns adds turns after the current last one, all or nothing.
func (dao *ConversationDAO) AppendTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Select("id").Where("session_id = ?", sessionID).First(&conv).Error; err != nil {
			return err
		}
		var maxSeq struct{ Max *int }
		if err := tx.Model(&models.ConversationTurn{}).
			Select("MAX(seq) AS max").
			Where("session_id = ?", sessionID).
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		next := 0
		if maxSeq.Max != nil {
			next = *maxSeq.Max + 1
		}
		if err := createTurns(tx, sessionID, next, turns); err != nil {
			return err
		}
		return touch(tx, sessionID)
	})
}

// ClearTurns empties the transcript but keeps the conversation row.
func (dao *ConversationDAO) ClearTurns(ctx context.Context, sessionID string) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).Where("session_id = ?", sessionID).Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("session_id = ?", sessionID).Delete(&models.ConversationTurn{}).Error
	})
}

// GetConversation returns nil, nil when no conversation matches session and owner.
func (dao *ConversationDAO) GetConversation(ctx context.Context, sessionID, ownerID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := dao.DB.WithContext(ctx).
		Where("session_id = ? AND owner_id = ?", sessionID, ownerID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (dao *ConversationDAO) ListTurns(ctx context.Context, sessionID string) ([]models.ConversationTurn, error) {
	var turns []models.ConversationTurn
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&turns).Error
	return turns, err
}

func (dao *ConversationDAO) CountTurns(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := dao.DB.WithContext(ctx).
		Model(&models.ConversationTurn{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// ListTurnsRange returns turns [start, end) in ascending order.
func (dao *ConversationDAO) ListTurnsRange(ctx context.Context, sessionID string, start, end int) ([]models.ConversationTurn, error) {
	if end <= start {
		return []models.ConversationTurn{}, nil
	}
	var turns []models.ConversationTurn
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Offset(start).
		Limit(end - start).
		Find(&turns).Error
	return turns, err
}

// ListRecent returns up to limit conversations of an owner, most recently updated first.
func (dao *ConversationDAO) ListRecent(ctx context.Context, ownerID string, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := dao.DB.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("id", "session_id", "owner_id", "document_type", "is_summarized", "provider", "model", "created_at", "updated_at").
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListExpired returns the session ids not updated since before.
func (dao *ConversationDAO) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := dao.DB.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("updated_at < ?", before).
		Pluck("session_id", &ids).Error
	return ids, err
}

// DeleteConversations removes conversations and their turns.
func (dao *ConversationDAO) DeleteConversations(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	var deleted int64
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", sessionIDs).Delete(&models.ConversationTurn{}).Error; err != nil {
			return err
		}
		res := tx.Where("session_id IN ?", sessionIDs).Delete(&models.Conversation{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

func createTurns(tx *gorm.DB, sessionID string, firstSeq int, turns []models.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	rows := make([]models.ConversationTurn, len(turns))
	for i, t := range turns {
		t.SessionID = sessionID
		t.Seq = firstSeq + i
		rows[i] = t
	}
	return tx.Create(&rows).Error
}

func touch(tx *gorm.DB, sessionID string) error {
	return tx.Model(&models.Conversation{}).Where("session_id = ?", sessionID).Update("updated_at", time.Now()).Error
}
