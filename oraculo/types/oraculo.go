package types

import "time"

type InitializeRequest struct {
	Provider     string `json:"provider" validate:"required"`
	Model        string `json:"model" validate:"required"`
	APIKey       string `json:"api_key,omitempty"`
	DocumentType string `json:"document_type" validate:"required"`
	Source       string `json:"source" validate:"required"`
	SessionID    string `json:"session_id,omitempty" validate:"omitempty,max=255"`
}

type InitializeResponse struct {
	SessionID       string `json:"session_id"`
	DocumentPreview string `json:"document_preview"`
	WasSummarized   bool   `json:"was_summarized"`
}

type ExchangeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
	APIKey    string `json:"api_key,omitempty"`
}

type ExchangeResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

type ClearRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type TurnView struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type HistoryPage struct {
	SessionID  string     `json:"session_id"`
	Messages   []TurnView `json:"messages"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
	Total      int        `json:"total"`
	HasMore    bool       `json:"has_more"`
	NextOffset int        `json:"next_offset"`
}

type ConversationSummary struct {
	SessionID    string    `json:"session_id"`
	DocumentType string    `json:"document_type"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	IsSummarized bool      `json:"is_summarized"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ActiveSessions struct {
	ActiveSessions []string              `json:"active_sessions"`
	Conversations  []ConversationSummary `json:"conversations"`
}

type ProviderInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}
