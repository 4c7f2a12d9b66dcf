package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
)

var (
	ErrRequestNotFound  = apierr.E(apierr.NotFound, "friend request not found")
	ErrDuplicateRequest = apierr.E(apierr.Conflict, "a friend request already exists between these users")
	ErrAlreadyFriends   = apierr.E(apierr.Conflict, "users are already friends")
)

const requestColumns = `id, sender_id, receiver_id, status, created_at`

// FriendRequestRepository abstracts friend request persistence. Requests are
// removed on resolution; acceptance additionally mutates both friend lists
// and provisions the direct chat, all inside one transaction.
type FriendRequestRepository interface {
	CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error)
	RequestViewByID(ctx context.Context, requestID int) (models.FriendRequestView, error)
	ListPending(ctx context.Context, receiverID int) ([]models.FriendRequestView, error)
	Accept(ctx context.Context, requestID int) (models.Chat, error)
	Reject(ctx context.Context, requestID int) error
}

// FriendRequestRepo is a sqlx implementation of FriendRequestRepository.
type FriendRequestRepo struct {
	db *sqlx.DB
}

func NewFriendRequestRepo(db *sqlx.DB) *FriendRequestRepo {
	return &FriendRequestRepo{db: db}
}

// CreateRequest inserts a pending request after verifying no request exists
// in either direction and the users are not already friends. The schema's
// uniqueness constraint on the ordered pair backs the same-direction check.
func (r *FriendRequestRepo) CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	var friends bool
	if err := r.db.GetContext(ctx, &friends,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE user_id=$1 AND friend_id=$2)`, senderID, receiverID); err != nil {
		return models.FriendRequest{}, err
	}
	if friends {
		return models.FriendRequest{}, ErrAlreadyFriends
	}

	var reverse bool
	if err := r.db.GetContext(ctx, &reverse,
		`SELECT EXISTS(SELECT 1 FROM friend_requests WHERE sender_id=$1 AND receiver_id=$2)`,
		receiverID, senderID); err != nil {
		return models.FriendRequest{}, err
	}
	if reverse {
		return models.FriendRequest{}, ErrDuplicateRequest
	}

	var req models.FriendRequest
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2)
         RETURNING `+requestColumns,
		senderID, receiverID).StructScan(&req)
	if isUniqueViolation(err) {
		return models.FriendRequest{}, ErrDuplicateRequest
	}
	return req, err
}

func (r *FriendRequestRepo) GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req,
		`SELECT `+requestColumns+` FROM friend_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrRequestNotFound
	}
	return req, err
}

// RequestViewByID attaches the denormalized sender to one request.
func (r *FriendRequestRepo) RequestViewByID(ctx context.Context, requestID int) (models.FriendRequestView, error) {
	req, err := r.GetRequest(ctx, requestID)
	if err != nil {
		return models.FriendRequestView{}, err
	}

	var view models.FriendRequestView
	view.FriendRequest = req
	if err := r.db.GetContext(ctx, &view.Sender,
		`SELECT `+publicUserColumns+` FROM users WHERE id=$1`, req.SenderID); err != nil {
		return models.FriendRequestView{}, err
	}
	return view, nil
}

// ListPending returns a receiver's pending requests newest first with
// denormalized senders.
func (r *FriendRequestRepo) ListPending(ctx context.Context, receiverID int) ([]models.FriendRequestView, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT fr.id, fr.sender_id, fr.receiver_id, fr.status, fr.created_at,
                u.id, u.username, u.email, u.display_name, u.avatar_url
         FROM friend_requests fr INNER JOIN users u ON u.id = fr.sender_id
         WHERE fr.receiver_id=$1 AND fr.status=$2
         ORDER BY fr.created_at DESC`, receiverID, models.FriendRequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.FriendRequestView
	for rows.Next() {
		var v models.FriendRequestView
		if err := rows.Scan(&v.ID, &v.SenderID, &v.ReceiverID, &v.Status, &v.CreatedAt,
			&v.Sender.ID, &v.Sender.Username, &v.Sender.Email, &v.Sender.DisplayName, &v.Sender.AvatarURL); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// Accept resolves a request: the request row is deleted, both friendship
// rows are inserted and the direct chat is provisioned, all or nothing.
func (r *FriendRequestRepo) Accept(ctx context.Context, requestID int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req models.FriendRequest
	err = tx.GetContext(ctx, &req,
		`SELECT `+requestColumns+` FROM friend_requests WHERE id=$1 FOR UPDATE`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrRequestNotFound
		return models.Chat{}, err
	}
	if err != nil {
		return models.Chat{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM friend_requests WHERE id=$1`, requestID); err != nil {
		return models.Chat{}, err
	}

	for _, pair := range [][2]int{{req.SenderID, req.ReceiverID}, {req.ReceiverID, req.SenderID}} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO friends (user_id, friend_id) VALUES ($1, $2)
             ON CONFLICT (user_id, friend_id) DO NOTHING`, pair[0], pair[1]); err != nil {
			return models.Chat{}, err
		}
	}

	var chat models.Chat
	chat, _, err = getOrCreateDirectChat(ctx, tx, req.SenderID, req.ReceiverID)
	if err != nil {
		return models.Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// Reject deletes the request without side effects.
func (r *FriendRequestRepo) Reject(ctx context.Context, requestID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id=$1`, requestID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrRequestNotFound)
}
