package session

import (
	"context"
	"errors"
	"time"

	"oraculo/oraculo/sources/psql/dao"
	"oraculo/oraculo/sources/psql/models"
	"oraculo/oraculo/types"

	"gorm.io/gorm"
)

// ErrRecordMissing is returned by Durable writes against an unknown session.
var ErrRecordMissing = errors.New("durable record missing")

// Durable is the persistent tier. Load returns nil, nil when no record
// matches both session and owner.
type Durable interface {
	Upsert(ctx context.Context, rec Record) error
	Append(ctx context.Context, sessionID string, turns []Turn) error
	Clear(ctx context.Context, sessionID string) error
	Load(ctx context.Context, sessionID, ownerID string) (*Record, error)
	Owned(ctx context.Context, sessionID, ownerID string) (bool, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Range(ctx context.Context, sessionID string, start, end int) ([]Turn, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]types.ConversationSummary, error)
	Expired(ctx context.Context, before time.Time) ([]string, error)
	Delete(ctx context.Context, sessionIDs []string) (int64, error)
}

// GormDurable stores sessions through the conversation DAO.
type GormDurable struct {
	dao *dao.ConversationDAO
}

func NewGormDurable(d *dao.ConversationDAO) *GormDurable {
	return &GormDurable{dao: d}
}

func toModelTurns(turns []Turn) []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(turns))
	for i, t := range turns {
		out[i] = models.ConversationTurn{
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
			Metadata:  t.Metadata,
		}
	}
	return out
}

func fromModelTurns(rows []models.ConversationTurn) []Turn {
	out := make([]Turn, len(rows))
	for i, r := range rows {
		out[i] = Turn{
			Role:      Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
			Metadata:  r.Metadata,
		}
	}
	return out
}

func (g *GormDurable) Upsert(ctx context.Context, rec Record) error {
	conv := &models.Conversation{
		SessionID:          rec.SessionID,
		OwnerID:            rec.OwnerID,
		DocumentType:       string(rec.DocumentType),
		NormalizedDocument: rec.NormalizedDocument,
		IsSummarized:       rec.IsSummarized,
		Provider:           rec.Provider,
		Model:              rec.Model,
	}
	return g.dao.UpsertConversation(ctx, conv, toModelTurns(rec.Transcript))
}

func (g *GormDurable) Append(ctx context.Context, sessionID string, turns []Turn) error {
	err := g.dao.AppendTurns(ctx, sessionID, toModelTurns(turns))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordMissing
	}
	return err
}

func (g *GormDurable) Clear(ctx context.Context, sessionID string) error {
	err := g.dao.ClearTurns(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordMissing
	}
	return err
}

func (g *GormDurable) Load(ctx context.Context, sessionID, ownerID string) (*Record, error) {
	conv, err := g.dao.GetConversation(ctx, sessionID, ownerID)
	if err != nil || conv == nil {
		return nil, err
	}
	rows, err := g.dao.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Record{
		SessionID:          conv.SessionID,
		OwnerID:            conv.OwnerID,
		Provider:           conv.Provider,
		Model:              conv.Model,
		DocumentType:       types.DocumentType(conv.DocumentType),
		NormalizedDocument: conv.NormalizedDocument,
		IsSummarized:       conv.IsSummarized,
		Transcript:         fromModelTurns(rows),
		UpdatedAt:          conv.UpdatedAt,
	}, nil
}

func (g *GormDurable) Owned(ctx context.Context, sessionID, ownerID string) (bool, error) {
	conv, err := g.dao.GetConversation(ctx, sessionID, ownerID)
	return conv != nil, err
}

func (g *GormDurable) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := g.dao.CountTurns(ctx, sessionID)
	return int(n), err
}

func (g *GormDurable) Range(ctx context.Context, sessionID string, start, end int) ([]Turn, error) {
	rows, err := g.dao.ListTurnsRange(ctx, sessionID, start, end)
	if err != nil {
		return nil, err
	}
	return fromModelTurns(rows), nil
}

func (g *GormDurable) Recent(ctx context.Context, ownerID string, limit int) ([]types.ConversationSummary, error) {
	convs, err := g.dao.ListRecent(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.ConversationSummary, len(convs))
	for i, c := range convs {
		out[i] = types.ConversationSummary{
			SessionID:    c.SessionID,
			DocumentType: c.DocumentType,
			Provider:     c.Provider,
			Model:        c.Model,
			IsSummarized: c.IsSummarized,
			UpdatedAt:    c.UpdatedAt,
		}
	}
	return out, nil
}

func (g *GormDurable) Expired(ctx context.Context, before time.Time) ([]string, error) {
	return g.dao.ListExpired(ctx, before)
}

func (g *GormDurable) Delete(ctx context.Context, sessionIDs []string) (int64, error) {
	return g.dao.DeleteConversations(ctx, sessionIDs)
}
