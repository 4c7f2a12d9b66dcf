package ws

// Server → client event kinds.
const (
	EventConnected             = "connected"
	EventSocketError           = "socket-error"
	EventChatCreated           = "chat-created"
	EventChatDeleted           = "chat-deleted"
	EventGroupNameChanged      = "group-name-changed"
	EventParticipantJoined     = "participant-joined"
	EventParticipantLeft       = "participant-left"
	EventMessageReceived       = "message-received"
	EventMessageChanged        = "message-changed"
	EventFriendRequestReceived = "friend-request-received"
)

// Client → server event kinds. Typing events are relayed back out to the
// chat room verbatim.
const (
	EventJoinChat   = "join-chat"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
)

// Envelope is the wire shape for every websocket event.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
