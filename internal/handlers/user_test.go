package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"harborchat/internal/mocks"
	"harborchat/internal/models"
	"harborchat/internal/repositories"
	"harborchat/internal/ws"
)

func setupUserRouter(handler *UserHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/users/search", handler.SearchUsers)
	r.POST("/users/friend-requests/:receiver_id", handler.SendFriendRequest)
	r.PATCH("/users/friend-requests/:request_id", handler.UpdateFriendRequestStatus)
	r.GET("/users/friends", handler.ListFriends)
	r.GET("/users/friend-requests", handler.ListInvitations)
	return r
}

func newUserHandler(users *mocks.UserRepositoryMock, requests *mocks.FriendRequestRepositoryMock, chats *mocks.ChatRepositoryMock, emitter *mocks.EmitterMock) *UserHandler {
	return NewUserHandler(users, requests, chats, emitter, nil)
}

func TestSendFriendRequestToSelf(t *testing.T) {
	handler := newUserHandler(new(mocks.UserRepositoryMock), new(mocks.FriendRequestRepositoryMock), new(mocks.ChatRepositoryMock), new(mocks.EmitterMock))
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users/friend-requests/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendFriendRequestNotifiesReceiver(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	requests := new(mocks.FriendRequestRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newUserHandler(users, requests, new(mocks.ChatRepositoryMock), emitter)
	router := setupUserRouter(handler)

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	requests.On("CreateRequest", mock.Anything, 1, 2).Return(models.FriendRequest{ID: 7, SenderID: 1, ReceiverID: 2}, nil).Once()
	requests.On("RequestViewByID", mock.Anything, 7).Return(models.FriendRequestView{
		FriendRequest: models.FriendRequest{ID: 7, SenderID: 1, ReceiverID: 2},
		Sender:        models.PublicUser{ID: 1, Username: "alice"},
	}, nil).Once()
	emitter.On("EmitToUser", mock.Anything, 2, ws.EventFriendRequestReceived, mock.Anything).Return().Once()

	req := httptest.NewRequest(http.MethodPost, "/users/friend-requests/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	requests.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	requests := new(mocks.FriendRequestRepositoryMock)
	handler := newUserHandler(users, requests, new(mocks.ChatRepositoryMock), new(mocks.EmitterMock))
	router := setupUserRouter(handler)

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	requests.On("CreateRequest", mock.Anything, 1, 2).Return(models.FriendRequest{}, repositories.ErrDuplicateRequest).Once()

	req := httptest.NewRequest(http.MethodPost, "/users/friend-requests/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	requests.AssertExpectations(t)
}

func TestResolveFriendRequestReceiverOnly(t *testing.T) {
	requests := new(mocks.FriendRequestRepositoryMock)
	handler := newUserHandler(new(mocks.UserRepositoryMock), requests, new(mocks.ChatRepositoryMock), new(mocks.EmitterMock))
	router := setupUserRouter(handler)

	requests.On("GetRequest", mock.Anything, 7).Return(models.FriendRequest{ID: 7, SenderID: 1, ReceiverID: 3}, nil).Once()

	body := bytes.NewBufferString(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/friend-requests/7", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	requests.AssertExpectations(t)
}

func TestAcceptFriendRequestNotifiesSender(t *testing.T) {
	requests := new(mocks.FriendRequestRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newUserHandler(new(mocks.UserRepositoryMock), requests, chats, emitter)
	router := setupUserRouter(handler)

	requests.On("GetRequest", mock.Anything, 7).Return(models.FriendRequest{ID: 7, SenderID: 2, ReceiverID: 1}, nil).Once()
	requests.On("Accept", mock.Anything, 7).Return(models.Chat{ID: 10}, nil).Once()
	chats.On("ChatViewByID", mock.Anything, 10, 1).Return(models.ChatView{ID: 10}, nil).Once()
	emitter.On("EmitToUser", mock.Anything, 2, ws.EventChatCreated, mock.Anything).Return().Once()

	body := bytes.NewBufferString(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/friend-requests/7", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	requests.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestRejectFriendRequestDeletesOnly(t *testing.T) {
	requests := new(mocks.FriendRequestRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newUserHandler(new(mocks.UserRepositoryMock), requests, new(mocks.ChatRepositoryMock), emitter)
	router := setupUserRouter(handler)

	requests.On("GetRequest", mock.Anything, 7).Return(models.FriendRequest{ID: 7, SenderID: 2, ReceiverID: 1}, nil).Once()
	requests.On("Reject", mock.Anything, 7).Return(nil).Once()

	body := bytes.NewBufferString(`{"status":"rejected"}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/friend-requests/7", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	requests.AssertExpectations(t)
	emitter.AssertNotCalled(t, "EmitToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveFriendRequestUnknownStatus(t *testing.T) {
	handler := newUserHandler(new(mocks.UserRepositoryMock), new(mocks.FriendRequestRepositoryMock), new(mocks.ChatRepositoryMock), new(mocks.EmitterMock))
	router := setupUserRouter(handler)

	body := bytes.NewBufferString(`{"status":"maybe"}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/friend-requests/7", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUsersDefaultsPagination(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := newUserHandler(users, new(mocks.FriendRequestRepositoryMock), new(mocks.ChatRepositoryMock), new(mocks.EmitterMock))
	router := setupUserRouter(handler)

	users.On("SearchUsers", mock.Anything, 1, "bob", 1, 20).Return([]models.PublicUser{{ID: 2, Username: "bob"}}, 1, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/search?search=bob", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}
