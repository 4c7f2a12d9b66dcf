package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
)

var (
	ErrUserNotFound = apierr.E(apierr.NotFound, "user not found")
	ErrUserExists   = apierr.E(apierr.Conflict, "username or email already taken")
)

const publicUserColumns = `id, username, email, display_name, avatar_url`
const userColumns = `id, username, email, password_hash, display_name, avatar_url, refresh_token, created_at`

// UserRepository abstracts account and friendship persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, username, email, passwordHash, displayName string) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	SearchUsers(ctx context.Context, selfID int, search string, page, limit int) ([]models.PublicUser, int, error)
	SetRefreshToken(ctx context.Context, userID int, token string) error
	ListFriends(ctx context.Context, userID int) ([]models.PublicUser, error)
	AreFriends(ctx context.Context, userID, otherID int) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account. Username and email uniqueness is
// enforced by the schema; violations surface as a Conflict.
func (r *UserRepo) CreateUser(ctx context.Context, username, email, passwordHash, displayName string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, email, password_hash, display_name)
         VALUES ($1, $2, $3, $4)
         RETURNING `+userColumns,
		username, email, passwordHash, displayName).StructScan(&user)
	if isUniqueViolation(err) {
		return models.User{}, ErrUserExists
	}
	return user, err
}

func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SearchUsers returns a page of users matching the username filter,
// excluding the caller, plus the total match count.
func (r *UserRepo) SearchUsers(ctx context.Context, selfID int, search string, page, limit int) ([]models.PublicUser, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 5
	}
	pattern := "%" + search + "%"

	var users []models.PublicUser
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+publicUserColumns+` FROM users
         WHERE id <> $1 AND username ILIKE $2
         ORDER BY username
         OFFSET $3 LIMIT $4`,
		selfID, pattern, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM users WHERE id <> $1 AND username ILIKE $2`, selfID, pattern); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID int, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET refresh_token=$2 WHERE id=$1`, userID, token)
	return err
}

func (r *UserRepo) ListFriends(ctx context.Context, userID int) ([]models.PublicUser, error) {
	var friends []models.PublicUser
	err := r.db.SelectContext(ctx, &friends,
		`SELECT u.id, u.username, u.email, u.display_name, u.avatar_url
         FROM friends f INNER JOIN users u ON u.id = f.friend_id
         WHERE f.user_id=$1
         ORDER BY u.username`, userID)
	return friends, err
}

func (r *UserRepo) AreFriends(ctx context.Context, userID, otherID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE user_id=$1 AND friend_id=$2)`, userID, otherID)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
