package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
	"harborchat/internal/repositories"
	"harborchat/internal/telemetry"
	"harborchat/internal/ws"
)

// ChatHandler manages direct and group chats.
type ChatHandler struct {
	chats   repositories.ChatRepository
	servers repositories.ServerRepository
	users   repositories.UserRepository
	emitter ws.Emitter
	audit   *telemetry.AuditEmitter
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, servers repositories.ServerRepository, users repositories.UserRepository, emitter ws.Emitter, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chats:   chats,
		servers: servers,
		users:   users,
		emitter: emitter,
		audit:   audit,
	}
}

// CreateOrGetDirectChat handles POST /chats/direct/:receiver_id. Repeated
// calls for the same pair return the existing chat.
func (h *ChatHandler) CreateOrGetDirectChat(c *gin.Context) {
	userID := c.GetInt("userID")
	receiverID, ok := paramInt(c, "receiver_id")
	if !ok {
		return
	}

	if receiverID == userID {
		respondError(c, apierr.E(apierr.Validation, "cannot chat with yourself"))
		return
	}
	if _, err := h.users.GetUser(c.Request.Context(), receiverID); err != nil {
		respondError(c, err)
		return
	}

	chat, created, err := h.chats.CreateOrGetDirectChat(c.Request.Context(), userID, receiverID)
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chat.ID, userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load chat"))
		return
	}

	if created {
		h.emitter.EmitToUser(c.Request.Context(), receiverID, ws.EventChatCreated, view)
		emitAudit(c, h.audit, "INFO", "Direct chat created")
		c.JSON(http.StatusCreated, gin.H{"chat": view})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": view})
}

// ListDirectChats handles GET /chats.
func (h *ChatHandler) ListDirectChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chats.ListDirectChats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateGroupChat handles POST /servers/:server_id/chats. The creator is
// always the first participant; listed participants must be server members.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")
	serverID, ok := paramInt(c, "server_id")
	if !ok {
		return
	}

	var req struct {
		Name           string `json:"name" binding:"required"`
		ParticipantIDs []int  `json:"participant_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, apierr.E(apierr.Validation, "chat name must not be empty"))
		return
	}

	for _, id := range req.ParticipantIDs {
		if id == userID {
			respondError(c, apierr.E(apierr.Forbidden, "creator must not appear in the participants list"))
			return
		}
	}
	participants := req.ParticipantIDs
	if len(participants) == 0 {
		respondError(c, apierr.E(apierr.Validation, "a group chat needs at least one other participant"))
		return
	}

	if err := h.requireServerRole(c, serverID, userID, models.RoleAdmin); err != nil {
		respondError(c, err)
		return
	}

	for _, id := range participants {
		member, err := h.servers.IsMember(c.Request.Context(), serverID, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !member {
			respondError(c, apierr.Ef(apierr.Validation, "user %d is not a server member", id))
			return
		}
	}

	chat, err := h.chats.CreateGroupChat(c.Request.Context(), serverID, userID, name, participants)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "group chat creation failed")
		respondError(c, err)
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chat.ID, userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load created chat"))
		return
	}

	h.emitter.EmitToUsers(c.Request.Context(), participants, ws.EventChatCreated, view)
	emitAudit(c, h.audit, "INFO", "Group chat created")
	c.JSON(http.StatusCreated, gin.H{"chat": view})
}

// ListGroupChats handles GET /servers/:server_id/chats. Only chats the
// caller participates in are returned.
func (h *ChatHandler) ListGroupChats(c *gin.Context) {
	userID := c.GetInt("userID")
	serverID, ok := paramInt(c, "server_id")
	if !ok {
		return
	}

	member, err := h.servers.IsMember(c.Request.Context(), serverID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, apierr.E(apierr.Forbidden, "not a server member"))
		return
	}

	chats, err := h.chats.ListGroupChats(c.Request.Context(), serverID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChatDetails handles GET /chats/:chat_id.
func (h *ChatHandler) GetChatDetails(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, apierr.E(apierr.Forbidden, "not a chat participant"))
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": view})
}

// RenameGroupChat handles PATCH /chats/:chat_id/name.
func (h *ChatHandler) RenameGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, apierr.E(apierr.Validation, "chat name must not be empty"))
		return
	}

	chat, err := h.authorizeGroupMutation(c, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.chats.RenameChat(c.Request.Context(), chatID, name); err != nil {
		respondError(c, err)
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load renamed chat"))
		return
	}

	h.fanoutToParticipants(c, chat.ID, userID, ws.EventGroupNameChanged, view)
	emitAudit(c, h.audit, "INFO", "Group chat renamed")
	c.JSON(http.StatusOK, gin.H{"chat": view})
}

// DeleteGroupChat handles DELETE /chats/:chat_id. Messages go with the
// chat through the schema's cascade.
func (h *ChatHandler) DeleteGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	chat, err := h.authorizeGroupMutation(c, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	participants, err := h.chats.ParticipantIDs(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.chats.DeleteChat(c.Request.Context(), chatID); err != nil {
		respondError(c, err)
		return
	}

	h.emitter.EmitToUsers(c.Request.Context(), withoutUser(participants, userID), ws.EventChatDeleted, gin.H{"chat_id": chat.ID})
	emitAudit(c, h.audit, "INFO", "Group chat deleted")
	c.Status(http.StatusNoContent)
}

// AddParticipant handles PATCH /chats/:chat_id/participants/:user_id.
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := paramInt(c, "user_id")
	if !ok {
		return
	}

	chat, err := h.authorizeGroupMutation(c, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	member, err := h.servers.IsMember(c.Request.Context(), *chat.ServerID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, apierr.E(apierr.Validation, "user is not a server member"))
		return
	}

	if err := h.chats.AddParticipant(c.Request.Context(), chatID, targetID); err != nil {
		respondError(c, err)
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load chat"))
		return
	}

	h.fanoutToParticipants(c, chatID, userID, ws.EventParticipantJoined, view)
	emitAudit(c, h.audit, "INFO", "Chat participant added")
	c.JSON(http.StatusOK, gin.H{"chat": view})
}

// RemoveParticipant handles DELETE /chats/:chat_id/participants/:user_id.
// Members holding the owner or admin role cannot be removed.
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := paramInt(c, "user_id")
	if !ok {
		return
	}

	chat, err := h.authorizeGroupMutation(c, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	targetRole, err := h.servers.MemberRole(c.Request.Context(), *chat.ServerID, targetID)
	switch {
	case err == nil && targetRole.HasAtLeast(models.RoleAdmin):
		respondError(c, apierr.E(apierr.Forbidden, "cannot remove an owner or admin from a chat"))
		return
	case err != nil && apierr.KindOf(err) != apierr.NotFound:
		respondError(c, err)
		return
	}

	if err := h.chats.RemoveParticipant(c.Request.Context(), chatID, targetID); err != nil {
		respondError(c, err)
		return
	}

	h.fanoutToParticipants(c, chatID, userID, ws.EventParticipantLeft, gin.H{"chat_id": chatID, "user_id": targetID})
	emitAudit(c, h.audit, "INFO", "Chat participant removed")
	c.Status(http.StatusNoContent)
}

// LeaveGroupChat handles DELETE /chats/:chat_id/leave.
func (h *ChatHandler) LeaveGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !chat.IsGroup {
		respondError(c, apierr.E(apierr.Validation, "cannot leave a direct chat"))
		return
	}

	if err := h.chats.RemoveParticipant(c.Request.Context(), chatID, userID); err != nil {
		respondError(c, err)
		return
	}

	h.fanoutToParticipants(c, chatID, userID, ws.EventParticipantLeft, gin.H{"chat_id": chatID, "user_id": userID})
	emitAudit(c, h.audit, "INFO", "Left group chat")
	c.Status(http.StatusNoContent)
}

// authorizeGroupMutation loads the chat and verifies it is a group chat
// whose server counts the caller as owner or admin.
func (h *ChatHandler) authorizeGroupMutation(c *gin.Context, chatID, userID int) (models.Chat, error) {
	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.IsGroup || chat.ServerID == nil {
		return models.Chat{}, apierr.E(apierr.Validation, "not a group chat")
	}
	if err := h.requireServerRole(c, *chat.ServerID, userID, models.RoleAdmin); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (h *ChatHandler) requireServerRole(c *gin.Context, serverID, userID int, required models.Role) error {
	role, err := h.servers.MemberRole(c.Request.Context(), serverID, userID)
	if err != nil {
		if apierr.KindOf(err) == apierr.NotFound {
			return apierr.E(apierr.Forbidden, "not a server member")
		}
		return err
	}
	if !role.HasAtLeast(required) {
		return apierr.E(apierr.Forbidden, "insufficient role")
	}
	return nil
}

// fanoutToParticipants emits an event to every chat participant except the
// actor.
func (h *ChatHandler) fanoutToParticipants(c *gin.Context, chatID, actorID int, event string, payload any) {
	participants, err := h.chats.ParticipantIDs(c.Request.Context(), chatID)
	if err != nil {
		return
	}
	h.emitter.EmitToUsers(c.Request.Context(), withoutUser(participants, actorID), event, payload)
}
