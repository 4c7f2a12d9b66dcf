package models

import "time"

// Chat is either a direct chat (exactly two participants, no server) or a
// group chat scoped to a server.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	ServerID      *int      `db:"server_id" json:"server_id,omitempty"`
	LastMessageID *int      `db:"last_message_id" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ChatView is the shared read-side projection: participants without
// credential fields plus the last message with its denormalized sender.
// Every chat-returning endpoint produces this shape.
type ChatView struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	IsGroup      bool         `json:"is_group"`
	ServerID     *int         `json:"server_id,omitempty"`
	Participants []PublicUser `json:"participants"`
	LastMessage  *MessageView `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
}
