package models

import "time"

// Server is a community grouping users and group chats.
type Server struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ServerMember is a membership row. The owner always holds a row with
// RoleOwner and that row is immutable.
type ServerMember struct {
	ServerID int  `db:"server_id" json:"server_id"`
	UserID   int  `db:"user_id" json:"user_id"`
	Role     Role `db:"role" json:"role"`
}

// MemberView is a membership row with the denormalized user.
type MemberView struct {
	User PublicUser `json:"user"`
	Role Role       `json:"role"`
}

// ServerView is a server with its denormalized member list.
type ServerView struct {
	Server
	Members []MemberView `json:"members"`
}
