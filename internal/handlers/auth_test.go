package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"harborchat/internal/auth"
	"harborchat/internal/mocks"
	"harborchat/internal/models"
)

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/refresh", handler.Refresh)
	r.POST("/auth/logout", func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	}, handler.Logout)
	return r
}

func testTokenService() *auth.TokenService {
	return auth.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
}

func TestRegisterValidation(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(users, testTokenService(), nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	body := bytes.NewBufferString(`{"username":"ab","email":"not-an-email","password":"short"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Fields, 3)
	users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(users, testTokenService(), nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	hash, err := auth.HashPassword("correct-password")
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(models.User{ID: 1, PasswordHash: hash}, nil).Once()

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"wrong-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	users.AssertExpectations(t)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(users, testTokenService(), nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	hash, err := auth.HashPassword("correct-password")
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(models.User{ID: 1, PasswordHash: hash}, nil).Once()
	users.On("SetRefreshToken", mock.Anything, 1, mock.AnythingOfType("string")).Return(nil).Once()

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"correct-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, rec.Header().Values("Set-Cookie"))
	users.AssertExpectations(t)
}

func TestLogoutClearsRefreshTokenAndCookies(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(users, testTokenService(), nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	users.On("SetRefreshToken", mock.Anything, 1, "").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, cookie := range cookies {
		require.Empty(t, cookie.Value)
		require.Negative(t, cookie.MaxAge)
	}
	users.AssertExpectations(t)
}

func TestRefreshRejectsRotatedToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	tokens := testTokenService()
	handler := NewAuthHandler(users, tokens, nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	pair, err := tokens.IssuePair(1)
	require.NoError(t, err)
	// The stored token differs from the presented one.
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, RefreshToken: "another-token"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.Refresh})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	users.AssertExpectations(t)
}

func TestRefreshRotatesTokens(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	tokens := testTokenService()
	handler := NewAuthHandler(users, tokens, nil, 15*time.Minute, 24*time.Hour)
	router := setupAuthRouter(handler)

	pair, err := tokens.IssuePair(1)
	require.NoError(t, err)
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, RefreshToken: pair.Refresh}, nil).Once()
	users.On("SetRefreshToken", mock.Anything, 1, mock.AnythingOfType("string")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.Refresh})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}
