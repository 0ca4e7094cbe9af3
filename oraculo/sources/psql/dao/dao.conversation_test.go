package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"oraculo/oraculo/sources/psql/models"
	"oraculo/oraculo/sources/psql/psqltest"

	"gorm.io/gorm"
)

func setupDAO(t *testing.T) *ConversationDAO {
	t.Helper()
	return NewConversationDAO(psqltest.NewDatabase(t).DB)
}

func seedConversation(t *testing.T, dao *ConversationDAO, sessionID, owner string) {
	t.Helper()
	conv := &models.Conversation{
		SessionID:          sessionID,
		OwnerID:            owner,
		DocumentType:       "PlainText",
		NormalizedDocument: "doc",
		Provider:           "Groq",
		Model:              "llama-3.1-8b-instant",
	}
	turns := []models.ConversationTurn{{Role: "document-context", Content: "ctx", CreatedAt: time.Now()}}
	if err := dao.UpsertConversation(context.Background(), conv, turns); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	dao := setupDAO(t)
	ctx := context.Background()
	seedConversation(t, dao, "s1", "alice")

	conv, err := dao.GetConversation(ctx, "s1", "alice")
	if err != nil || conv == nil {
		t.Fatalf("expected conversation, got %v %v", conv, err)
	}
	if conv.Provider != "Groq" {
		t.Errorf("unexpected provider %q", conv.Provider)
	}

	other, err := dao.GetConversation(ctx, "s1", "bob")
	if err != nil || other != nil {
		t.Errorf("expected owner isolation, got %v %v", other, err)
	}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	dao := setupDAO(t)
	ctx := context.Background()
	seedConversation(t, dao, "s1", "alice")
	if err := dao.AppendTurns(ctx, "s1", []models.ConversationTurn{
		{Role: "user", Content: "q", CreatedAt: time.Now()},
		{Role: "assistant", Content: "a", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	seedConversation(t, dao, "s1", "bob")
	n, _ := dao.CountTurns(ctx, "s1")
	if n != 1 {
		t.Errorf("expected transcript reset to 1 turn, got %d", n)
	}
	if conv, _ := dao.GetConversation(ctx, "s1", "bob"); conv == nil {
		t.Error("expected new owner after re-initialize")
	}
}

func TestAppendOrdersTurns(t *testing.T) {
	dao := setupDAO(t)
	ctx := context.Background()
	seedConversation(t, dao, "s1", "alice")

	for i := 0; i < 3; i++ {
		err := dao.AppendTurns(ctx, "s1", []models.ConversationTurn{
			{Role: "user", Content: "q", CreatedAt: time.Now()},
			{Role: "assistant", Content: "a", CreatedAt: time.Now(), Metadata: map[string]any{"model": "m"}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	turns, err := dao.ListTurns(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 7 {
		t.Fatalf("expected 7 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
	}
	if turns[2].Metadata["model"] != "m" {
		t.Errorf("metadata not persisted: %v", turns[2].Metadata)
	}

	page, err := dao.ListTurnsRange(ctx, "s1", 5, 7)
	if err != nil || len(page) != 2 || page[0].Seq != 5 {
		t.Errorf("unexpected range %v %v", page, err)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	dao := setupDAO(t)
	err := dao.AppendTurns(context.Background(), "missing", []models.ConversationTurn{{Role: "user", Content: "q"}})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestClearTurns(t *testing.T) {
	dao := setupDAO(t)
	ctx := context.Background()
	seedConversation(t, dao, "s1", "alice")

	if err := dao.ClearTurns(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := dao.CountTurns(ctx, "s1"); n != 0 {
		t.Errorf("expected empty transcript, got %d", n)
	}
	if conv, _ := dao.GetConversation(ctx, "s1", "alice"); conv == nil || conv.NormalizedDocument != "doc" {
		t.Error("clear must keep the conversation identity")
	}
	if err := dao.AppendTurns(ctx, "s1", []models.ConversationTurn{{Role: "user", Content: "q"}}); err != nil {
		t.Fatal(err)
	}
	if err := dao.ClearTurns(ctx, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestListRecentAndExpiry(t *testing.T) {
	dao := setupDAO(t)
	ctx := context.Background()
	seedConversation(t, dao, "old", "alice")
	seedConversation(t, dao, "new", "alice")
	seedConversation(t, dao, "other", "bob")

	past := time.Now().Add(-48 * time.Hour)
	if err := dao.DB.Model(&models.Conversation{}).Where("session_id = ?", "old").UpdateColumn("updated_at", past).Error; err != nil {
		t.Fatal(err)
	}

	recent, err := dao.ListRecent(ctx, "alice", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].SessionID != "new" {
		t.Errorf("unexpected recent list %+v", recent)
	}

	expired, err := dao.ListExpired(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || len(expired) != 1 || expired[0] != "old" {
		t.Fatalf("unexpected expired list %v %v", expired, err)
	}
	n, err := dao.DeleteConversations(ctx, expired)
	if err != nil || n != 1 {
		t.Errorf("expected 1 deletion, got %d %v", n, err)
	}
	if c, _ := dao.CountTurns(ctx, "old"); c != 0 {
		t.Error("turns of deleted conversation must be removed")
	}
}
