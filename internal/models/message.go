package models

import "time"

// AttachmentKind tags the media type of an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is an uploaded file reference on a message.
type Attachment struct {
	ID        int            `db:"id" json:"id"`
	MessageID int            `db:"message_id" json:"-"`
	URL       string         `db:"url" json:"url"`
	Kind      AttachmentKind `db:"kind" json:"kind"`
}

// Message is a chat message. Deletes and edits are soft: flags flip and
// content may be replaced, the row is never removed.
type Message struct {
	ID        int       `db:"id" json:"id"`
	ChatID    int       `db:"chat_id" json:"chat_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	IsEdited  bool      `db:"is_edited" json:"is_edited"`
	IsDeleted bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageView attaches the denormalized sender and attachments.
type MessageView struct {
	Message
	Sender      PublicUser   `json:"sender"`
	Attachments []Attachment `json:"attachments"`
}
