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
)

func setupServerRouter(handler *ServerHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/servers", handler.CreateServer)
	r.GET("/servers", handler.ListServers)
	r.PATCH("/servers/:server_id/members", handler.AddMembers)
	r.PATCH("/servers/:server_id/members/:user_id/role", handler.ChangeMemberRole)
	r.DELETE("/servers/:server_id/members/:user_id", handler.RemoveMember)
	return r
}

func TestCreateServerRequiresName(t *testing.T) {
	handler := NewServerHandler(new(mocks.ServerRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	body, contentType := multipartBody(t, map[string]string{"name": "  "})
	req := httptest.NewRequest(http.MethodPost, "/servers", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateServerSuccess(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("CreateServer", mock.Anything, 1, "guild", "").Return(models.Server{ID: 5, OwnerID: 1, Name: "guild"}, nil).Once()

	body, contentType := multipartBody(t, map[string]string{"name": "guild"})
	req := httptest.NewRequest(http.MethodPost, "/servers", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	servers.AssertExpectations(t)
}

func TestAddMembersMemberForbidden(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, nil).Once()

	body := bytes.NewBufferString(`{"user_ids":[2]}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/5/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	servers.AssertExpectations(t)
}

func TestAddMembersDuplicateConflict(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewServerHandler(servers, users, new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	servers.On("AddMembers", mock.Anything, 5, []int{2}).Return(repositories.ErrAlreadyMember).Once()

	body := bytes.NewBufferString(`{"user_ids":[2]}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/5/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	servers.AssertExpectations(t)
}

func TestAddMembersBatchRejectedAsWhole(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewServerHandler(servers, users, new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	users.On("GetUser", mock.Anything, 3).Return(models.User{ID: 3}, nil).Once()
	// The repository applies the batch in one transaction, so one duplicate
	// rejects every id.
	servers.On("AddMembers", mock.Anything, 5, []int{2, 3}).Return(repositories.ErrAlreadyMember).Once()

	body := bytes.NewBufferString(`{"user_ids":[2,3]}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/5/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	servers.AssertNumberOfCalls(t, "AddMembers", 1)
	servers.AssertExpectations(t)
}

func TestChangeMemberRoleOwnerImmutable(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	servers.On("ChangeMemberRole", mock.Anything, 5, 2, models.RoleAdmin).Return(repositories.ErrOwnerImmutable).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/5/members/2/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	servers.AssertExpectations(t)
}

func TestChangeMemberRoleSameRoleRejected(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleOwner, nil).Once()
	servers.On("ChangeMemberRole", mock.Anything, 5, 2, models.RoleAdmin).Return(repositories.ErrSameRole).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/5/members/2/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	servers.AssertExpectations(t)
}

func TestRemoveMemberOwnerProtected(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	servers.On("RemoveMember", mock.Anything, 5, 2).Return(repositories.ErrOwnerImmutable).Once()

	req := httptest.NewRequest(http.MethodDelete, "/servers/5/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	servers.AssertExpectations(t)
}

func TestListServers(t *testing.T) {
	servers := new(mocks.ServerRepositoryMock)
	handler := NewServerHandler(servers, new(mocks.UserRepositoryMock), new(mocks.UploaderMock), nil)
	router := setupServerRouter(handler)

	servers.On("ListServersForUser", mock.Anything, 1).Return([]models.ServerView{{Server: models.Server{ID: 5}}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	servers.AssertExpectations(t)
}
