package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
)

var ErrMessageNotFound = apierr.E(apierr.NotFound, "message not found")

const messageColumns = `id, chat_id, sender_id, content, is_edited, is_deleted, created_at`

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MessageViewByID(ctx context.Context, messageID int) (models.MessageView, error)
	ListMessages(ctx context.Context, chatID int) ([]models.MessageView, error)
	MarkDeleted(ctx context.Context, messageID int, content string) (models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message with its attachments, advances the chat's
// lastMessage pointer and bumps unread counters for the other participants,
// all in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING `+messageColumns,
		chatID, senderID, content).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	for _, a := range attachments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO message_attachments (message_id, url, kind) VALUES ($1, $2, $3)`,
			msg.ID, a.URL, a.Kind); err != nil {
			return models.Message{}, err
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE chats SET last_message_id=$2 WHERE id=$1`, chatID, msg.ID); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count = unread_count + 1
         WHERE chat_id=$1 AND user_id <> $2`, chatID, senderID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MessageViewByID returns one message with its denormalized sender and
// attachments.
func (r *MessageRepo) MessageViewByID(ctx context.Context, messageID int) (models.MessageView, error) {
	return messageViewByID(ctx, r.db, messageID)
}

// messageViewByID is shared with the chat projection for lastMessage.
func messageViewByID(ctx context.Context, q sqlx.ExtContext, messageID int) (models.MessageView, error) {
	var view models.MessageView
	err := sqlx.GetContext(ctx, q, &view.Message,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageView{}, ErrMessageNotFound
	}
	if err != nil {
		return models.MessageView{}, err
	}

	if err := sqlx.GetContext(ctx, q, &view.Sender,
		`SELECT `+publicUserColumns+` FROM users WHERE id=$1`, view.SenderID); err != nil {
		return models.MessageView{}, err
	}

	if err := sqlx.SelectContext(ctx, q, &view.Attachments,
		`SELECT id, message_id, url, kind FROM message_attachments WHERE message_id=$1 ORDER BY id`,
		messageID); err != nil {
		return models.MessageView{}, err
	}
	if view.Attachments == nil {
		view.Attachments = []models.Attachment{}
	}
	return view, nil
}

// ListMessages returns a chat's messages newest first with denormalized
// senders.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int) ([]models.MessageView, error) {
	var ids []int
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC`, chatID); err != nil {
		return nil, err
	}

	views := make([]models.MessageView, 0, len(ids))
	for _, id := range ids {
		view, err := messageViewByID(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// MarkDeleted soft-deletes a message. When content is non-empty the message
// body is replaced and marked edited in the same update.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	var err error
	if content != "" {
		err = r.db.QueryRowxContext(ctx,
			`UPDATE messages SET is_deleted = TRUE, is_edited = TRUE, content=$2
             WHERE id=$1 RETURNING `+messageColumns,
			messageID, content).StructScan(&msg)
	} else {
		err = r.db.QueryRowxContext(ctx,
			`UPDATE messages SET is_deleted = TRUE WHERE id=$1 RETURNING `+messageColumns,
			messageID).StructScan(&msg)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
