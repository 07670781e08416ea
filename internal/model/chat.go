package model

import (
	"encoding/json"
	"time"
)

// ChatRole identifies the author of a transcript entry.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// IsError marks locally appended failure notices that never reached the
	// backend.
	IsError bool `json:"is_error,omitempty"`
}

// ChatQuery is the question payload sent to the assistant.
type ChatQuery struct {
	SessionID string `json:"session_id" validate:"required,uuid4"`
	Question  string `json:"question" validate:"required"`
}

// ChatAnswer is the assistant's reply.
type ChatAnswer struct {
	Response   string          `json:"response"`
	References json.RawMessage `json:"references,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

// Conversation is a stored chat thread summary.
type Conversation struct {
	ID        string   `json:"_id"`
	Title     string   `json:"title,omitempty"`
	Pinned    bool     `json:"is_pinned,omitempty"`
	UpdatedAt *APITime `json:"updated_at,omitempty"`
}

// ConversationList groups a user's conversations for sidebar-style display.
type ConversationList struct {
	UserID   string         `json:"user_id"`
	Total    int            `json:"total_count"`
	Pinned   []Conversation `json:"pinned_conversations"`
	Unpinned []Conversation `json:"unpinned_conversations"`
}
