package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"harborchat/internal/apierr"
	"harborchat/internal/auth"
	"harborchat/internal/repositories"
	"harborchat/internal/telemetry"
)

// AuthHandler manages registration, login and token rotation.
type AuthHandler struct {
	users      repositories.UserRepository
	tokens     *auth.TokenService
	audit      *telemetry.AuditEmitter
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.TokenService, audit *telemetry.AuditEmitter, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		users:      users,
		tokens:     tokens,
		audit:      audit,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validateRegistration(req.Username, req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, req.Email, hash, displayName)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "registration failed")
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "User registered")
	c.JSON(http.StatusCreated, gin.H{"user": user.Public()})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			respondError(c, apierr.E(apierr.Unauthorized, "invalid credentials"))
			return
		}
		respondError(c, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		emitAudit(c, h.audit, "ERROR", "login rejected")
		respondError(c, apierr.E(apierr.Unauthorized, "invalid credentials"))
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.users.SetRefreshToken(c.Request.Context(), user.ID, pair.Refresh); err != nil {
		respondError(c, err)
		return
	}

	h.setTokenCookies(c, pair)
	emitAudit(c, h.audit, "INFO", "User logged in")
	c.JSON(http.StatusOK, gin.H{
		"user":          user.Public(),
		"access_token":  pair.Access,
		"refresh_token": pair.Refresh,
	})
}

// Refresh handles POST /auth/refresh. The presented refresh token must
// match the one persisted at last login; rotation invalidates it.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := refreshTokenFromRequest(c)
	if token == "" {
		respondError(c, apierr.E(apierr.Unauthorized, "missing refresh token"))
		return
	}

	userID, err := h.tokens.VerifyRefresh(token)
	if err != nil {
		respondError(c, apierr.E(apierr.Unauthorized, "invalid refresh token"))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierr.E(apierr.Unauthorized, "invalid refresh token"))
		return
	}
	if user.RefreshToken != token {
		emitAudit(c, h.audit, "ERROR", "stale refresh token presented")
		respondError(c, apierr.E(apierr.Unauthorized, "refresh token has been rotated"))
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.users.SetRefreshToken(c.Request.Context(), user.ID, pair.Refresh); err != nil {
		respondError(c, err)
		return
	}

	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.Access,
		"refresh_token": pair.Refresh,
	})
}

// Logout handles POST /auth/logout. Clearing the persisted refresh token
// invalidates the issued pair; both cookies are expired.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetInt("userID")

	if err := h.users.SetRefreshToken(c.Request.Context(), userID, ""); err != nil {
		respondError(c, err)
		return
	}

	c.SetCookie("accessToken", "", -1, "/", "", false, true)
	c.SetCookie("refreshToken", "", -1, "/", "", false, true)
	emitAudit(c, h.audit, "INFO", "User logged out")
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) setTokenCookies(c *gin.Context, pair auth.Tokens) {
	c.SetCookie("accessToken", pair.Access, int(h.accessTTL.Seconds()), "/", "", false, true)
	c.SetCookie("refreshToken", pair.Refresh, int(h.refreshTTL.Seconds()), "/", "", false, true)
}

func refreshTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie("refreshToken"); err == nil && cookie != "" {
		return cookie
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func validateRegistration(username, email, password string) error {
	var fields []apierr.FieldError
	if len(username) < 3 {
		fields = append(fields, apierr.FieldError{Field: "username", Reason: "must be at least 3 characters"})
	}
	if !strings.Contains(email, "@") {
		fields = append(fields, apierr.FieldError{Field: "email", Reason: "must be a valid email address"})
	}
	if len(password) < 8 {
		fields = append(fields, apierr.FieldError{Field: "password", Reason: "must be at least 8 characters"})
	}
	if len(fields) > 0 {
		return apierr.E(apierr.Validation, "invalid registration payload").WithFields(fields...)
	}
	return nil
}
