package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageKind string

const (
	TextMessage  MessageKind = "text"
	ImageMessage MessageKind = "image"
	VoiceMessage MessageKind = "voice"
)

// Message is a single turn in a conversation. Once appended to a session's
// history it is never modified.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"` // milliseconds since epoch
	Kind      MessageKind `json:"kind,omitempty"`
}

// NewMessage builds a message stamped with the current time. Kind defaults
// to text.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		Kind:      TextMessage,
	}
}

// DisplayInfo is a snapshot of the user's Telegram identity captured at
// first contact. It is not refreshed afterwards.
type DisplayInfo struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Session is the unit of per-user state: conversation history plus the
// long-lived memory profile. UserID is the primary key.
type Session struct {
	ChatID       int64         `json:"chat_id"`
	UserID       int64         `json:"user_id"`
	DisplayInfo  *DisplayInfo  `json:"display_info,omitempty"`
	History      []Message     `json:"history"`
	Memory       MemoryProfile `json:"memory"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// Statistics are the aggregate counters for the whole store. TotalUsers
// counts sessions ever created and survives deletions; TotalMessages
// increments once per successful append.
type Statistics struct {
	TotalUsers    int64     `json:"total_users"`
	TotalMessages int64     `json:"total_messages"`
	LastReset     time.Time `json:"last_reset"`
}

// Store is the root aggregate persisted as a single document.
type Store struct {
	Sessions   map[int64]*Session `json:"sessions"`
	Statistics Statistics         `json:"statistics"`
}

// NewStore returns an empty store with zeroed counters and LastReset set
// to the current time.
func NewStore() *Store {
	return &Store{
		Sessions: make(map[int64]*Session),
		Statistics: Statistics{
			LastReset: time.Now(),
		},
	}
}
