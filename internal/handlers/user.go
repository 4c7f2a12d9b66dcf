package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
	"harborchat/internal/repositories"
	"harborchat/internal/telemetry"
	"harborchat/internal/ws"
)

// UserHandler manages user search and the friendship lifecycle.
type UserHandler struct {
	users    repositories.UserRepository
	requests repositories.FriendRequestRepository
	chats    repositories.ChatRepository
	emitter  ws.Emitter
	audit    *telemetry.AuditEmitter
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users repositories.UserRepository, requests repositories.FriendRequestRepository, chats repositories.ChatRepository, emitter ws.Emitter, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{
		users:    users,
		requests: requests,
		chats:    chats,
		emitter:  emitter,
		audit:    audit,
	}
}

// SearchUsers handles GET /users/search. Results exclude the caller and
// are paginated by username match.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	userID := c.GetInt("userID")
	search := strings.TrimSpace(c.Query("search"))

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, total, err := h.users.SearchUsers(c.Request.Context(), userID, search, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// SendFriendRequest handles POST /users/friend-requests/:receiver_id.
func (h *UserHandler) SendFriendRequest(c *gin.Context) {
	userID := c.GetInt("userID")
	receiverID, ok := paramInt(c, "receiver_id")
	if !ok {
		return
	}

	if receiverID == userID {
		respondError(c, apierr.E(apierr.Validation, "cannot send a friend request to yourself"))
		return
	}
	if _, err := h.users.GetUser(c.Request.Context(), receiverID); err != nil {
		respondError(c, err)
		return
	}

	request, err := h.requests.CreateRequest(c.Request.Context(), userID, receiverID)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "friend request rejected")
		respondError(c, err)
		return
	}

	view, err := h.requests.RequestViewByID(c.Request.Context(), request.ID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load created request"))
		return
	}

	h.emitter.EmitToUser(c.Request.Context(), receiverID, ws.EventFriendRequestReceived, view)
	emitAudit(c, h.audit, "INFO", "Friend request sent")
	c.JSON(http.StatusCreated, gin.H{"request": view})
}

// UpdateFriendRequestStatus handles PATCH /users/friend-requests/:request_id.
// Accepting deletes the request, records the friendship in both directions
// and creates the direct chat, all in one transaction.
func (h *UserHandler) UpdateFriendRequestStatus(c *gin.Context) {
	userID := c.GetInt("userID")
	requestID, ok := paramInt(c, "request_id")
	if !ok {
		return
	}

	var req struct {
		Status models.FriendRequestStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != models.FriendRequestAccepted && req.Status != models.FriendRequestRejected {
		respondError(c, apierr.E(apierr.Validation, "status must be accepted or rejected"))
		return
	}

	request, err := h.requests.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	if request.ReceiverID != userID {
		respondError(c, apierr.E(apierr.Forbidden, "only the receiver can resolve a friend request"))
		return
	}

	if req.Status == models.FriendRequestRejected {
		if err := h.requests.Reject(c.Request.Context(), requestID); err != nil {
			respondError(c, err)
			return
		}
		emitAudit(c, h.audit, "INFO", "Friend request rejected")
		c.JSON(http.StatusOK, gin.H{"status": models.FriendRequestRejected})
		return
	}

	chat, err := h.requests.Accept(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.chats.ChatViewByID(c.Request.Context(), chat.ID, userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load created chat"))
		return
	}

	h.emitter.EmitToUser(c.Request.Context(), request.SenderID, ws.EventChatCreated, view)
	emitAudit(c, h.audit, "INFO", "Friend request accepted")
	c.JSON(http.StatusOK, gin.H{"status": models.FriendRequestAccepted, "chat": view})
}

// ListFriends handles GET /users/friends.
func (h *UserHandler) ListFriends(c *gin.Context) {
	userID := c.GetInt("userID")

	friends, err := h.users.ListFriends(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListInvitations handles GET /users/friend-requests, newest first.
func (h *UserHandler) ListInvitations(c *gin.Context) {
	userID := c.GetInt("userID")

	requests, err := h.requests.ListPending(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
