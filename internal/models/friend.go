package models

import "time"

// FriendRequestStatus values a request can be resolved to.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s FriendRequestStatus) Valid() bool {
	return s == FriendRequestPending || s == FriendRequestAccepted || s == FriendRequestRejected
}

// FriendRequest is a pending invitation between two users. At most one
// request exists per unordered user pair; resolved requests are deleted,
// never kept around with a flipped status.
type FriendRequest struct {
	ID         int                 `db:"id" json:"id"`
	SenderID   int                 `db:"sender_id" json:"sender_id"`
	ReceiverID int                 `db:"receiver_id" json:"receiver_id"`
	Status     FriendRequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

// FriendRequestView attaches the denormalized sender.
type FriendRequestView struct {
	FriendRequest
	Sender PublicUser `json:"sender"`
}
