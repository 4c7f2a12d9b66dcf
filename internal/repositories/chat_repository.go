package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
)

var (
	ErrChatNotFound        = apierr.E(apierr.NotFound, "chat not found")
	ErrAlreadyParticipant  = apierr.E(apierr.Conflict, "user is already a chat participant")
	ErrParticipantNotFound = apierr.E(apierr.NotFound, "user is not a chat participant")
)

const defaultDirectChatName = "One On One Chat"

const chatColumns = `id, name, is_group, server_id, last_message_id, created_at`

// ChatRepository abstracts chat persistence and the shared denormalized
// chat projection.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, userID, receiverID int) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ParticipantIDs(ctx context.Context, chatID int) ([]int, error)
	ChatViewByID(ctx context.Context, chatID, forUserID int) (models.ChatView, error)
	ListDirectChats(ctx context.Context, userID int) ([]models.ChatView, error)
	ListGroupChats(ctx context.Context, serverID, userID int) ([]models.ChatView, error)
	CreateGroupChat(ctx context.Context, serverID, creatorID int, name string, participantIDs []int) (models.Chat, error)
	RenameChat(ctx context.Context, chatID int, name string) error
	DeleteChat(ctx context.Context, chatID int) error
	AddParticipant(ctx context.Context, chatID, userID int) error
	RemoveParticipant(ctx context.Context, chatID, userID int) error
	ResetUnread(ctx context.Context, chatID, userID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// directPairKey normalizes an unordered user pair into the unique key used
// to dedupe direct chats.
func directPairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateOrGetDirectChat returns the direct chat for the pair, creating it if
// absent. The bool reports whether a new chat was created. Safe under
// concurrent calls for the same pair: an insert conflict on the normalized
// pair key means someone else won the race, and the lookup is retried.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, userID, receiverID int) (models.Chat, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, false, err
	}

	chat, created, err := getOrCreateDirectChat(ctx, tx, userID, receiverID)
	if err != nil {
		tx.Rollback()
		return models.Chat{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, false, err
	}
	return chat, created, nil
}

// getOrCreateDirectChat is shared with the friend-request accept transaction.
func getOrCreateDirectChat(ctx context.Context, q sqlx.ExtContext, userID, receiverID int) (models.Chat, bool, error) {
	key := directPairKey(userID, receiverID)

	var chat models.Chat
	err := sqlx.GetContext(ctx, q, &chat, `SELECT `+chatColumns+` FROM chats WHERE pair_key=$1`, key)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	err = sqlx.GetContext(ctx, q, &chat,
		`INSERT INTO chats (name, is_group, pair_key) VALUES ($1, FALSE, $2)
         ON CONFLICT (pair_key) WHERE pair_key IS NOT NULL DO NOTHING
         RETURNING `+chatColumns,
		defaultDirectChatName, key)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race; the winner's row is canonical.
		err = sqlx.GetContext(ctx, q, &chat, `SELECT `+chatColumns+` FROM chats WHERE pair_key=$1`, key)
		return chat, false, err
	}
	if err != nil {
		return models.Chat{}, false, err
	}

	for _, id := range []int{userID, receiverID} {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, false, err
		}
	}
	return chat, true, nil
}

func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

func (r *ChatRepo) ParticipantIDs(ctx context.Context, chatID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_participants WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return ids, err
}

// ChatViewByID builds the shared denormalized projection for one chat.
// forUserID selects whose unread counter is reported; zero skips it.
func (r *ChatRepo) ChatViewByID(ctx context.Context, chatID, forUserID int) (models.ChatView, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	return r.buildView(ctx, chat, forUserID)
}

func (r *ChatRepo) buildView(ctx context.Context, chat models.Chat, forUserID int) (models.ChatView, error) {
	view := models.ChatView{
		ID:        chat.ID,
		Name:      chat.Name,
		IsGroup:   chat.IsGroup,
		ServerID:  chat.ServerID,
		CreatedAt: chat.CreatedAt,
	}

	err := r.db.SelectContext(ctx, &view.Participants,
		`SELECT u.id, u.username, u.email, u.display_name, u.avatar_url
         FROM chat_participants cp INNER JOIN users u ON u.id = cp.user_id
         WHERE cp.chat_id=$1
         ORDER BY u.id`, chat.ID)
	if err != nil {
		return models.ChatView{}, err
	}

	if forUserID != 0 {
		err = r.db.GetContext(ctx, &view.UnreadCount,
			`SELECT unread_count FROM chat_participants WHERE chat_id=$1 AND user_id=$2`, chat.ID, forUserID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return models.ChatView{}, err
		}
	}

	if chat.LastMessageID != nil {
		msg, err := messageViewByID(ctx, r.db, *chat.LastMessageID)
		if err != nil && !errors.Is(err, ErrMessageNotFound) {
			return models.ChatView{}, err
		}
		if err == nil {
			view.LastMessage = &msg
		}
	}
	return view, nil
}

// ListDirectChats returns the caller's direct chats sorted by last activity
// (last message time, else chat creation time) descending.
func (r *ChatRepo) ListDirectChats(ctx context.Context, userID int) ([]models.ChatView, error) {
	return r.listChats(ctx, userID,
		`SELECT c.id, c.name, c.is_group, c.server_id, c.last_message_id, c.created_at
         FROM chats c INNER JOIN chat_participants cp ON cp.chat_id = c.id
         WHERE cp.user_id=$1 AND c.is_group = FALSE
         ORDER BY COALESCE((SELECT m.created_at FROM messages m WHERE m.id = c.last_message_id), c.created_at) DESC`,
		userID)
}

// ListGroupChats returns the caller's group chats within a server, sorted
// the same way as ListDirectChats.
func (r *ChatRepo) ListGroupChats(ctx context.Context, serverID, userID int) ([]models.ChatView, error) {
	return r.listChats(ctx, userID,
		`SELECT c.id, c.name, c.is_group, c.server_id, c.last_message_id, c.created_at
         FROM chats c INNER JOIN chat_participants cp ON cp.chat_id = c.id
         WHERE cp.user_id=$2 AND c.is_group = TRUE AND c.server_id=$1
         ORDER BY COALESCE((SELECT m.created_at FROM messages m WHERE m.id = c.last_message_id), c.created_at) DESC`,
		serverID, userID)
}

func (r *ChatRepo) listChats(ctx context.Context, forUserID int, query string, args ...any) ([]models.ChatView, error) {
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, args...); err != nil {
		return nil, err
	}

	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		view, err := r.buildView(ctx, chat, forUserID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateGroupChat inserts a group chat and its participant rows atomically.
// The creator is always the first participant.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, serverID, creatorID int, name string, participantIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (name, is_group, server_id) VALUES ($1, TRUE, $2)
         RETURNING `+chatColumns,
		name, serverID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	seen := map[int]struct{}{creatorID: {}}
	ids := []int{creatorID}
	for _, id := range participantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *ChatRepo) RenameChat(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET name=$2 WHERE id=$1`, chatID, name)
	if err != nil {
		return err
	}
	return requireRow(res, ErrChatNotFound)
}

// DeleteChat removes the chat row; participants, messages and attachments
// cascade away with it.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrChatNotFound)
}

func (r *ChatRepo) AddParticipant(ctx context.Context, chatID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
         ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrAlreadyParticipant)
}

func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrParticipantNotFound)
}

func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count=0 WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

func requireRow(res sql.Result, missing error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return missing
	}
	return nil
}
