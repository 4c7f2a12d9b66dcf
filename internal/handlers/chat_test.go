package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
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

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/chats/direct/:receiver_id", handler.CreateOrGetDirectChat)
	r.GET("/chats", handler.ListDirectChats)
	r.POST("/servers/:server_id/chats", handler.CreateGroupChat)
	r.DELETE("/chats/:chat_id", handler.DeleteGroupChat)
	r.DELETE("/chats/:chat_id/leave", handler.LeaveGroupChat)
	r.DELETE("/chats/:chat_id/participants/:user_id", handler.RemoveParticipant)
	return r
}

func newChatHandler(chats *mocks.ChatRepositoryMock, servers *mocks.ServerRepositoryMock, users *mocks.UserRepositoryMock, emitter *mocks.EmitterMock) *ChatHandler {
	return NewChatHandler(chats, servers, users, emitter, nil)
}

func TestCreateDirectChatNew(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newChatHandler(chats, new(mocks.ServerRepositoryMock), users, emitter)
	router := setupChatRouter(handler)

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	chats.On("CreateOrGetDirectChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10}, true, nil).Once()
	chats.On("ChatViewByID", mock.Anything, 10, 1).Return(models.ChatView{ID: 10, Name: "One On One Chat"}, nil).Once()
	emitter.On("EmitToUser", mock.Anything, 2, ws.EventChatCreated, mock.Anything).Return().Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/direct/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chats.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestCreateDirectChatExistingIsIdempotent(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newChatHandler(chats, new(mocks.ServerRepositoryMock), users, emitter)
	router := setupChatRouter(handler)

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Twice()
	chats.On("CreateOrGetDirectChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10}, false, nil).Twice()
	chats.On("ChatViewByID", mock.Anything, 10, 1).Return(models.ChatView{ID: 10}, nil).Twice()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chats/direct/2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	chats.AssertExpectations(t)
	emitter.AssertNotCalled(t, "EmitToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateDirectChatWithSelf(t *testing.T) {
	handler := newChatHandler(new(mocks.ChatRepositoryMock), new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chats/direct/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDirectChatUnknownReceiver(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(new(mocks.ChatRepositoryMock), new(mocks.ServerRepositoryMock), users, new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	users.On("GetUser", mock.Anything, 9).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/direct/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	users.AssertExpectations(t)
}

func TestCreateGroupChatRequiresAdmin(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := newChatHandler(new(mocks.ChatRepositoryMock), servers, new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, nil).Once()

	body := bytes.NewBufferString(`{"name":"general","participant_ids":[2,3]}`)
	req := httptest.NewRequest(http.MethodPost, "/servers/5/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	servers.AssertExpectations(t)
}

func TestCreateGroupChatNotifiesParticipants(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	servers := new(mocks.ServerRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newChatHandler(chats, servers, new(mocks.UserRepositoryMock), emitter)
	router := setupChatRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	servers.On("IsMember", mock.Anything, 5, 2).Return(true, nil).Once()
	servers.On("IsMember", mock.Anything, 5, 3).Return(true, nil).Once()
	chats.On("CreateGroupChat", mock.Anything, 5, 1, "general", []int{2, 3}).Return(models.Chat{ID: 20}, nil).Once()
	chats.On("ChatViewByID", mock.Anything, 20, 1).Return(models.ChatView{ID: 20, Name: "general", IsGroup: true}, nil).Once()
	emitter.On("EmitToUsers", mock.Anything, []int{2, 3}, ws.EventChatCreated, mock.Anything).Return().Once()

	body := bytes.NewBufferString(`{"name":"general","participant_ids":[2,3]}`)
	req := httptest.NewRequest(http.MethodPost, "/servers/5/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chats.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestCreateGroupChatRejectsCreatorInList(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	body := bytes.NewBufferString(`{"name":"general","participant_ids":[1,2]}`)
	req := httptest.NewRequest(http.MethodPost, "/servers/5/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chats.AssertNotCalled(t, "CreateGroupChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupChatNeedsAnotherParticipant(t *testing.T) {
	handler := newChatHandler(new(mocks.ChatRepositoryMock), new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	body := bytes.NewBufferString(`{"name":"general","participant_ids":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/servers/5/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGroupChatMemberForbiddenOwnerAllowed(t *testing.T) {
	serverID := 5
	chat := models.Chat{ID: 20, IsGroup: true, ServerID: &serverID}

	chats := new(mocks.ChatRepositoryMock)
	servers := new(mocks.ServerRepositoryMock)
	emitter := new(mocks.EmitterMock)
	handler := newChatHandler(chats, servers, new(mocks.UserRepositoryMock), emitter)
	router := setupChatRouter(handler)

	chats.On("GetChat", mock.Anything, 20).Return(chat, nil).Twice()
	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleOwner, nil).Once()
	chats.On("ParticipantIDs", mock.Anything, 20).Return([]int{1, 2, 3}, nil).Once()
	chats.On("DeleteChat", mock.Anything, 20).Return(nil).Once()
	emitter.On("EmitToUsers", mock.Anything, []int{2, 3}, ws.EventChatDeleted, mock.Anything).Return().Once()

	req = httptest.NewRequest(http.MethodDelete, "/chats/20", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	chats.AssertExpectations(t)
	servers.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestRemoveParticipantRoleLookupFailure(t *testing.T) {
	serverID := 5
	chat := models.Chat{ID: 20, IsGroup: true, ServerID: &serverID}

	chats := new(mocks.ChatRepositoryMock)
	servers := new(mocks.ServerRepositoryMock)
	handler := newChatHandler(chats, servers, new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	chats.On("GetChat", mock.Anything, 20).Return(chat, nil).Once()
	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleOwner, nil).Once()
	servers.On("MemberRole", mock.Anything, 5, 2).Return(models.Role(""), errors.New("connection reset")).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/20/participants/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chats.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
	servers.AssertExpectations(t)
}

func TestLeaveDirectChatRejected(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	chats.On("GetChat", mock.Anything, 10).Return(models.Chat{ID: 10, IsGroup: false}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/10/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertExpectations(t)
}

func TestListDirectChatsBody(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.EmitterMock))
	router := setupChatRouter(handler)

	chats.On("ListDirectChats", mock.Anything, 1).Return([]models.ChatView{{ID: 10}, {ID: 11}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatView `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 2)
	chats.AssertExpectations(t)
}
