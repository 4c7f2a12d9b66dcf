package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"harborchat/internal/auth"
	"harborchat/internal/observability"
	"harborchat/internal/repositories"
)

// Handler upgrades websocket connections and registers them with the gateway.
type Handler struct {
	gateway *Gateway
	tokens  *auth.TokenService
	users   repositories.UserRepository
}

// NewHandler constructs a Handler.
func NewHandler(gateway *Gateway, tokens *auth.TokenService, users repositories.UserRepository) *Handler {
	return &Handler{gateway: gateway, tokens: tokens, users: users}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type clientMessage struct {
	Event  string `json:"event"`
	ChatID int    `json:"chat_id"`
}

// Handle upgrades the connection and joins the user's personal channel.
// Authentication failures are reported over the socket itself; the
// connection is left open but never registered.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("harborchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := handshakeToken(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	userID, err := h.tokens.VerifyAccess(token)
	if err == nil {
		_, err = h.users.GetUser(c.Request.Context(), userID)
	}
	if err != nil {
		_ = conn.WriteJSON(Envelope{Event: EventSocketError, Payload: map[string]string{
			"message": "authentication failed",
		}})
		observability.IncWSEvent(EventSocketError)
		go drain(conn)
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.gateway.Register(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(c.Request.Context(), "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
				"duration_ms": 0,
				"reason":      "",
			},
			"identity": map[string]interface{}{
				"user_id": info.UserID,
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	_ = conn.WriteJSON(Envelope{Event: EventConnected})

	go h.readLoop(conn, info)
}

func (h *Handler) readLoop(conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.gateway.Unregister(conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(context.Background(), "ws_events.connections", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: map[string]interface{}{
				"ws": map[string]interface{}{
					"event":       "ws_disconnect",
					"conn_id":     info.ConnID,
					"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
					"reason":      closeReason,
				},
				"identity": map[string]interface{}{
					"user_id": info.UserID,
					"ip":      info.IP,
				},
			},
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.WriteJSON(Envelope{Event: EventSocketError, Payload: map[string]string{
				"message": "malformed event",
			}})
			continue
		}

		switch msg.Event {
		case EventJoinChat:
			h.gateway.JoinChat(msg.ChatID, conn)
		case EventTyping, EventStopTyping:
			h.gateway.RelayTyping(msg.ChatID, conn, msg.Event)
		default:
			_ = conn.WriteJSON(Envelope{Event: EventSocketError, Payload: map[string]string{
				"message": "unknown event: " + msg.Event,
			}})
		}
	}
}

// handshakeToken reads the access token from the accessToken cookie, the
// Authorization header, or the token query parameter, in that order.
func handshakeToken(c *gin.Context) string {
	if cookie, err := c.Cookie("accessToken"); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if parts := strings.Split(header, " "); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return c.Query("token")
}

// drain consumes frames from an unauthenticated connection until the peer
// closes it.
func drain(conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
