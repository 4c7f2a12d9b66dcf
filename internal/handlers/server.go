package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"harborchat/internal/apierr"
	"harborchat/internal/models"
	"harborchat/internal/repositories"
	"harborchat/internal/storage"
	"harborchat/internal/telemetry"
)

// ServerHandler manages servers and their memberships.
type ServerHandler struct {
	servers  repositories.ServerRepository
	users    repositories.UserRepository
	uploader storage.Uploader
	audit    *telemetry.AuditEmitter
}

// NewServerHandler constructs a ServerHandler.
func NewServerHandler(servers repositories.ServerRepository, users repositories.UserRepository, uploader storage.Uploader, audit *telemetry.AuditEmitter) *ServerHandler {
	return &ServerHandler{
		servers:  servers,
		users:    users,
		uploader: uploader,
		audit:    audit,
	}
}

// CreateServer handles POST /servers. The multipart form carries the name
// and an optional avatar file; the caller becomes the owner.
func (h *ServerHandler) CreateServer(c *gin.Context) {
	userID := c.GetInt("userID")

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		respondError(c, apierr.E(apierr.Validation, "server name is required"))
		return
	}

	avatarURL := ""
	if file, err := c.FormFile("avatar"); err == nil {
		tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+filepath.Ext(file.Filename))
		if err := c.SaveUploadedFile(file, tmpPath); err != nil {
			respondError(c, apierr.E(apierr.Internal, "could not store avatar"))
			return
		}
		url, err := h.uploader.Upload(c.Request.Context(), tmpPath)
		os.Remove(tmpPath)
		if err != nil {
			respondError(c, apierr.E(apierr.Internal, "could not store avatar"))
			return
		}
		avatarURL = url
	}

	server, err := h.servers.CreateServer(c.Request.Context(), userID, name, avatarURL)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "server creation failed")
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Server created")
	c.JSON(http.StatusCreated, gin.H{"server": server})
}

// ListServers handles GET /servers.
func (h *ServerHandler) ListServers(c *gin.Context) {
	userID := c.GetInt("userID")

	servers, err := h.servers.ListServersForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

// AddMembers handles PATCH /servers/:server_id/members.
func (h *ServerHandler) AddMembers(c *gin.Context) {
	userID := c.GetInt("userID")
	serverID, ok := paramInt(c, "server_id")
	if !ok {
		return
	}

	var req struct {
		UserIDs []int `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.UserIDs) == 0 {
		respondError(c, apierr.E(apierr.Validation, "user_ids must not be empty"))
		return
	}

	if err := h.requireRole(c, serverID, userID, models.RoleAdmin); err != nil {
		respondError(c, err)
		return
	}

	for _, id := range req.UserIDs {
		if _, err := h.users.GetUser(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
	}

	if err := h.servers.AddMembers(c.Request.Context(), serverID, req.UserIDs); err != nil {
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Server members added")
	c.Status(http.StatusNoContent)
}

// ChangeMemberRole handles PATCH /servers/:server_id/members/:user_id/role.
func (h *ServerHandler) ChangeMemberRole(c *gin.Context) {
	userID := c.GetInt("userID")
	serverID, ok := paramInt(c, "server_id")
	if !ok {
		return
	}
	targetID, ok := paramInt(c, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		respondError(c, apierr.E(apierr.Validation, "unknown role"))
		return
	}

	if err := h.requireRole(c, serverID, userID, models.RoleAdmin); err != nil {
		respondError(c, err)
		return
	}

	if err := h.servers.ChangeMemberRole(c.Request.Context(), serverID, targetID, req.Role); err != nil {
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Member role changed")
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /servers/:server_id/members/:user_id.
func (h *ServerHandler) RemoveMember(c *gin.Context) {
	userID := c.GetInt("userID")
	serverID, ok := paramInt(c, "server_id")
	if !ok {
		return
	}
	targetID, ok := paramInt(c, "user_id")
	if !ok {
		return
	}

	if err := h.requireRole(c, serverID, userID, models.RoleAdmin); err != nil {
		respondError(c, err)
		return
	}

	if err := h.servers.RemoveMember(c.Request.Context(), serverID, targetID); err != nil {
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Server member removed")
	c.Status(http.StatusNoContent)
}

// requireRole verifies the caller holds at least the given role in the
// server. Non-members get a Forbidden rather than leaking existence.
func (h *ServerHandler) requireRole(c *gin.Context, serverID, userID int, required models.Role) error {
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
