package handlers

import (
	"mime/multipart"
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
	"harborchat/internal/ws"
)

// MessageHandler manages message reads and writes within a chat.
type MessageHandler struct {
	messages repositories.MessageRepository
	chats    repositories.ChatRepository
	uploader storage.Uploader
	emitter  ws.Emitter
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, chats repositories.ChatRepository, uploader storage.Uploader, emitter ws.Emitter, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		chats:    chats,
		uploader: uploader,
		emitter:  emitter,
		audit:    audit,
	}
}

// ListMessages handles GET /messages/:chat_id, newest first. Fetching
// resets the caller's unread counter for the chat.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	if err := h.requireParticipant(c, chatID, userID); err != nil {
		respondError(c, err)
		return
	}

	messages, err := h.messages.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.chats.ResetUnread(c.Request.Context(), chatID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage handles POST /messages/:chat_id. The multipart form carries
// content and optional attachment files; a message needs content or at
// least one attachment. Attachments that fail to upload are dropped.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}

	if err := h.requireParticipant(c, chatID, userID); err != nil {
		respondError(c, err)
		return
	}

	content := strings.TrimSpace(c.PostForm("content"))

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = form.File["attachments"]
	}

	if content == "" && len(files) == 0 {
		respondError(c, apierr.E(apierr.Validation, "message needs content or at least one attachment"))
		return
	}

	attachments := make([]models.Attachment, 0, len(files))
	for _, file := range files {
		if attachment, ok := h.uploadAttachment(c, file); ok {
			attachments = append(attachments, attachment)
		}
	}

	message, err := h.messages.CreateMessage(c.Request.Context(), chatID, userID, content, attachments)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "message send failed")
		respondError(c, err)
		return
	}

	view, err := h.messages.MessageViewByID(c.Request.Context(), message.ID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load created message"))
		return
	}

	h.fanoutToParticipants(c, chatID, userID, ws.EventMessageReceived, view)
	emitAudit(c, h.audit, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"message": view})
}

// DeleteOrEditMessage handles PATCH /messages/:chat_id/:message_id. Only
// the sender may touch a message; the message is marked deleted, and when
// new content is supplied it also replaces the old content and marks the
// message edited.
func (h *MessageHandler) DeleteOrEditMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	chatID, ok := paramInt(c, "chat_id")
	if !ok {
		return
	}
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	message, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if message.ChatID != chatID {
		respondError(c, apierr.E(apierr.Validation, "message does not belong to chat"))
		return
	}
	if message.SenderID != userID {
		respondError(c, apierr.E(apierr.Forbidden, "only the sender can change a message"))
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	_ = c.ShouldBindJSON(&req)

	if _, err := h.messages.MarkDeleted(c.Request.Context(), messageID, strings.TrimSpace(req.Content)); err != nil {
		respondError(c, err)
		return
	}

	view, err := h.messages.MessageViewByID(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, apierr.E(apierr.Internal, "could not load changed message"))
		return
	}

	h.fanoutToParticipants(c, chatID, userID, ws.EventMessageChanged, view)
	emitAudit(c, h.audit, "INFO", "Message changed")
	c.JSON(http.StatusOK, gin.H{"message": view})
}

func (h *MessageHandler) requireParticipant(c *gin.Context, chatID, userID int) error {
	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apierr.E(apierr.Forbidden, "not a chat participant")
	}
	return nil
}

// uploadAttachment stages the file on disk, pushes it to storage and
// removes the temp file whether or not the upload succeeded.
func (h *MessageHandler) uploadAttachment(c *gin.Context, file *multipart.FileHeader) (models.Attachment, bool) {
	tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		return models.Attachment{}, false
	}
	url, err := h.uploader.Upload(c.Request.Context(), tmpPath)
	os.Remove(tmpPath)
	if err != nil {
		return models.Attachment{}, false
	}
	// The temp file is gone at this point; only the durable URL is kept.
	return models.Attachment{
		URL:  url,
		Kind: attachmentKind(file.Filename),
	}, true
}

func attachmentKind(filename string) models.AttachmentKind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return models.AttachmentImage
	case ".mp4", ".webm", ".mov":
		return models.AttachmentVideo
	default:
		return models.AttachmentFile
	}
}

func (h *MessageHandler) fanoutToParticipants(c *gin.Context, chatID, actorID int, event string, payload any) {
	participants, err := h.chats.ParticipantIDs(c.Request.Context(), chatID)
	if err != nil {
		return
	}
	h.emitter.EmitToUsers(c.Request.Context(), withoutUser(participants, actorID), event, payload)
}
