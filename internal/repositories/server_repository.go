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
	ErrServerNotFound  = apierr.E(apierr.NotFound, "server not found")
	ErrNotServerMember = apierr.E(apierr.NotFound, "user is not a server member")
	ErrAlreadyMember   = apierr.E(apierr.Conflict, "user is already a server member")
	ErrOwnerImmutable  = apierr.E(apierr.Forbidden, "the owner role cannot be changed or removed")
	ErrSameRole        = apierr.E(apierr.Conflict, "member already holds this role")
)

const serverColumns = `id, owner_id, name, avatar_url, created_at`

// ServerRepository abstracts community persistence and role records.
type ServerRepository interface {
	CreateServer(ctx context.Context, ownerID int, name, avatarURL string) (models.Server, error)
	GetServer(ctx context.Context, serverID int) (models.Server, error)
	ListServersForUser(ctx context.Context, userID int) ([]models.ServerView, error)
	MemberRole(ctx context.Context, serverID, userID int) (models.Role, error)
	IsMember(ctx context.Context, serverID, userID int) (bool, error)
	AddMembers(ctx context.Context, serverID int, userIDs []int) error
	ChangeMemberRole(ctx context.Context, serverID, userID int, role models.Role) error
	RemoveMember(ctx context.Context, serverID, userID int) error
}

// ServerRepo is a sqlx implementation of ServerRepository.
type ServerRepo struct {
	db *sqlx.DB
}

func NewServerRepo(db *sqlx.DB) *ServerRepo {
	return &ServerRepo{db: db}
}

// CreateServer inserts the server and the owner's membership row in one
// transaction, so a server always carries its owner with role "owner".
func (r *ServerRepo) CreateServer(ctx context.Context, ownerID int, name, avatarURL string) (models.Server, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Server{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var server models.Server
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO servers (owner_id, name, avatar_url) VALUES ($1, $2, $3)
         RETURNING `+serverColumns,
		ownerID, name, avatarURL).StructScan(&server); err != nil {
		return models.Server{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO server_members (server_id, user_id, role) VALUES ($1, $2, $3)`,
		server.ID, ownerID, models.RoleOwner); err != nil {
		return models.Server{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Server{}, err
	}
	return server, nil
}

func (r *ServerRepo) GetServer(ctx context.Context, serverID int) (models.Server, error) {
	var server models.Server
	err := r.db.GetContext(ctx, &server, `SELECT `+serverColumns+` FROM servers WHERE id=$1`, serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Server{}, ErrServerNotFound
	}
	return server, err
}

// ListServersForUser returns the servers the user belongs to with their
// denormalized member lists.
func (r *ServerRepo) ListServersForUser(ctx context.Context, userID int) ([]models.ServerView, error) {
	var servers []models.Server
	err := r.db.SelectContext(ctx, &servers,
		`SELECT s.id, s.owner_id, s.name, s.avatar_url, s.created_at
         FROM servers s INNER JOIN server_members sm ON sm.server_id = s.id
         WHERE sm.user_id=$1
         ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	views := make([]models.ServerView, 0, len(servers))
	for _, server := range servers {
		members, err := r.listMembers(ctx, server.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, models.ServerView{Server: server, Members: members})
	}
	return views, nil
}

func (r *ServerRepo) listMembers(ctx context.Context, serverID int) ([]models.MemberView, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT u.id, u.username, u.email, u.display_name, u.avatar_url, sm.role
         FROM server_members sm INNER JOIN users u ON u.id = sm.user_id
         WHERE sm.server_id=$1
         ORDER BY u.id`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.MemberView
	for rows.Next() {
		var m models.MemberView
		if err := rows.Scan(&m.User.ID, &m.User.Username, &m.User.Email, &m.User.DisplayName, &m.User.AvatarURL, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberRole returns the role the user holds on the server.
func (r *ServerRepo) MemberRole(ctx context.Context, serverID, userID int) (models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM server_members WHERE server_id=$1 AND user_id=$2`, serverID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotServerMember
	}
	return role, err
}

func (r *ServerRepo) IsMember(ctx context.Context, serverID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id=$1 AND user_id=$2)`, serverID, userID)
	return exists, err
}

// AddMembers adds users with the member role in one transaction. Adding an
// existing member rejects the whole batch; no partial additions remain.
func (r *ServerRepo) AddMembers(ctx context.Context, serverID int, userIDs []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, id := range userIDs {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`INSERT INTO server_members (server_id, user_id, role) VALUES ($1, $2, $3)
             ON CONFLICT (server_id, user_id) DO NOTHING`,
			serverID, id, models.RoleMember)
		if err != nil {
			return err
		}
		if err = requireRow(res, ErrAlreadyMember); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// ChangeMemberRole updates a member's role. The owner row is immutable and a
// change to the role the member already holds is rejected as a no-op.
func (r *ServerRepo) ChangeMemberRole(ctx context.Context, serverID, userID int, role models.Role) error {
	current, err := r.MemberRole(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if current == models.RoleOwner || role == models.RoleOwner {
		return ErrOwnerImmutable
	}
	if current == role {
		return ErrSameRole
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE server_members SET role=$3 WHERE server_id=$1 AND user_id=$2 AND role <> $4`,
		serverID, userID, role, models.RoleOwner)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotServerMember)
}

// RemoveMember deletes a membership row. The owner can never be removed.
func (r *ServerRepo) RemoveMember(ctx context.Context, serverID, userID int) error {
	current, err := r.MemberRole(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if current == models.RoleOwner {
		return ErrOwnerImmutable
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM server_members WHERE server_id=$1 AND user_id=$2 AND role <> $3`,
		serverID, userID, models.RoleOwner)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotServerMember)
}
