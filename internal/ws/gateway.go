package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"harborchat/internal/observability"
)

// Emitter delivers events to users' personal channels. Handlers take this
// interface so fanout can be faked in tests.
type Emitter interface {
	EmitToUser(ctx context.Context, userID int, event string, payload any)
	EmitToUsers(ctx context.Context, userIDs []int, event string, payload any)
}

// Gateway maintains active websocket connections. Every authenticated
// connection lives in its user's personal channel; connections additionally
// join chat rooms, which are used only for typing relays.
type Gateway struct {
	users     map[int]map[*websocket.Conn]bool
	chatRooms map[int]map[*websocket.Conn]bool
	connInfo  map[*websocket.Conn]ConnInfo
	mu        sync.RWMutex
}

// NewGateway creates an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{
		users:     make(map[int]map[*websocket.Conn]bool),
		chatRooms: make(map[int]map[*websocket.Conn]bool),
		connInfo:  make(map[*websocket.Conn]ConnInfo),
	}
}

// Register adds a connection to its user's personal channel.
func (g *Gateway) Register(conn *websocket.Conn, info ConnInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.users[info.UserID]; !ok {
		g.users[info.UserID] = make(map[*websocket.Conn]bool)
	}
	g.users[info.UserID][conn] = true
	g.connInfo[conn] = info
}

// Unregister removes a connection from its personal channel and from every
// chat room it joined.
func (g *Gateway) Unregister(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(conn)
}

func (g *Gateway) removeLocked(conn *websocket.Conn) {
	info, ok := g.connInfo[conn]
	if ok {
		if conns, ok := g.users[info.UserID]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(g.users, info.UserID)
			}
		}
	}
	for chatID, conns := range g.chatRooms {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(g.chatRooms, chatID)
		}
	}
	delete(g.connInfo, conn)
}

// JoinChat subscribes a registered connection to a chat room.
func (g *Gateway) JoinChat(chatID int, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.connInfo[conn]; !ok {
		return
	}
	if _, ok := g.chatRooms[chatID]; !ok {
		g.chatRooms[chatID] = make(map[*websocket.Conn]bool)
	}
	g.chatRooms[chatID][conn] = true
}

// EmitToUser writes an event to every connection in a user's personal
// channel. Users with no live connections are skipped.
func (g *Gateway) EmitToUser(ctx context.Context, userID int, event string, payload any) {
	g.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(g.users[userID]))
	for conn := range g.users[userID] {
		conns = append(conns, conn)
	}
	g.mu.RUnlock()

	if len(conns) == 0 {
		observability.IncFanoutDropped()
		return
	}

	data, _ := json.Marshal(Envelope{Event: event, Payload: payload})
	for _, conn := range conns {
		g.write(conn, data)
	}
	observability.IncWSEvent(event)
	g.publishFanout(ctx, userID, event)
}

// EmitToUsers delivers one event to several personal channels.
func (g *Gateway) EmitToUsers(ctx context.Context, userIDs []int, event string, payload any) {
	for _, id := range userIDs {
		g.EmitToUser(ctx, id, event, payload)
	}
}

// RelayTyping forwards a typing event to every chat room connection except
// the sender's own.
func (g *Gateway) RelayTyping(chatID int, sender *websocket.Conn, event string) {
	g.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(g.chatRooms[chatID]))
	for conn := range g.chatRooms[chatID] {
		if conn != sender {
			conns = append(conns, conn)
		}
	}
	g.mu.RUnlock()

	data, _ := json.Marshal(Envelope{Event: event, Payload: map[string]int{"chat_id": chatID}})
	for _, conn := range conns {
		g.write(conn, data)
	}
	observability.IncWSEvent(event)
}

func (g *Gateway) write(conn *websocket.Conn, data []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
		conn.Close()
		g.publishWSError(conn, err)
		g.Unregister(conn)
	}
}

func (g *Gateway) publishFanout(ctx context.Context, userID int, event string) {
	_ = observability.PublishEvent(ctx, "chat_events.fanout", observability.EventEnvelope{
		EventType: "chat_events",
		EventName: event,
		Payload: map[string]interface{}{
			"user_id": userID,
			"event":   event,
		},
	}, nil)
}

func (g *Gateway) publishWSError(conn *websocket.Conn, err error) {
	g.mu.RLock()
	info, ok := g.connInfo[conn]
	g.mu.RUnlock()
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID,
			"ip":      info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.errors", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
