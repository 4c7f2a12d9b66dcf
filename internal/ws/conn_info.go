package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo carries per-connection identity captured at handshake time.
type ConnInfo struct {
	ConnID      string
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}
