package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"harborchat/internal/apierr"
	"harborchat/internal/telemetry"
)

const requestIDContextKey = "request_id"

// respondError maps a domain error to its HTTP status. Validation errors
// include per-field details when present.
func respondError(c *gin.Context, err error) {
	status := apierr.Status(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		body["fields"] = apiErr.Fields
	}
	c.JSON(status, body)
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int); ok && userID != 0 {
			value := int64(userID)
			return &value
		}
	}
	return nil
}

// paramInt parses a numeric path parameter, responding 400 on failure.
func paramInt(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return value, true
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// withoutUser filters the actor out of a fanout target list.
func withoutUser(userIDs []int, actorID int) []int {
	targets := make([]int, 0, len(userIDs))
	for _, id := range userIDs {
		if id != actorID {
			targets = append(targets, id)
		}
	}
	return targets
}
