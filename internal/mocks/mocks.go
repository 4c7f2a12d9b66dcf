package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"harborchat/internal/models"
	"harborchat/internal/repositories"
	"harborchat/internal/storage"
	"harborchat/internal/ws"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetDirectChat(ctx context.Context, userID, receiverID int) (models.Chat, bool, error) {
	args := m.Called(ctx, userID, receiverID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ParticipantIDs(ctx context.Context, chatID int) ([]int, error) {
	args := m.Called(ctx, chatID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) ChatViewByID(ctx context.Context, chatID, forUserID int) (models.ChatView, error) {
	args := m.Called(ctx, chatID, forUserID)
	var view models.ChatView
	if val := args.Get(0); val != nil {
		view = val.(models.ChatView)
	}
	return view, args.Error(1)
}

func (m *ChatRepositoryMock) ListDirectChats(ctx context.Context, userID int) ([]models.ChatView, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatView
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatView)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) ListGroupChats(ctx context.Context, serverID, userID int) ([]models.ChatView, error) {
	args := m.Called(ctx, serverID, userID)
	var list []models.ChatView
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatView)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, serverID, creatorID int, name string, participantIDs []int) (models.Chat, error) {
	args := m.Called(ctx, serverID, creatorID, name, participantIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) RenameChat(ctx context.Context, chatID int, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) AddParticipant(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveParticipant(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, attachments)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MessageViewByID(ctx context.Context, messageID int) (models.MessageView, error) {
	args := m.Called(ctx, messageID)
	var view models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(models.MessageView)
	}
	return view, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID int) ([]models.MessageView, error) {
	args := m.Called(ctx, chatID)
	var list []models.MessageView
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageView)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDeleted(ctx context.Context, messageID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ServerRepositoryMock struct {
	mock.Mock
}

func (m *ServerRepositoryMock) CreateServer(ctx context.Context, ownerID int, name, avatarURL string) (models.Server, error) {
	args := m.Called(ctx, ownerID, name, avatarURL)
	var server models.Server
	if val := args.Get(0); val != nil {
		server = val.(models.Server)
	}
	return server, args.Error(1)
}

func (m *ServerRepositoryMock) GetServer(ctx context.Context, serverID int) (models.Server, error) {
	args := m.Called(ctx, serverID)
	var server models.Server
	if val := args.Get(0); val != nil {
		server = val.(models.Server)
	}
	return server, args.Error(1)
}

func (m *ServerRepositoryMock) ListServersForUser(ctx context.Context, userID int) ([]models.ServerView, error) {
	args := m.Called(ctx, userID)
	var list []models.ServerView
	if val := args.Get(0); val != nil {
		list = val.([]models.ServerView)
	}
	return list, args.Error(1)
}

func (m *ServerRepositoryMock) MemberRole(ctx context.Context, serverID, userID int) (models.Role, error) {
	args := m.Called(ctx, serverID, userID)
	var role models.Role
	if val := args.Get(0); val != nil {
		role = val.(models.Role)
	}
	return role, args.Error(1)
}

func (m *ServerRepositoryMock) IsMember(ctx context.Context, serverID, userID int) (bool, error) {
	args := m.Called(ctx, serverID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ServerRepositoryMock) AddMembers(ctx context.Context, serverID int, userIDs []int) error {
	args := m.Called(ctx, serverID, userIDs)
	return args.Error(0)
}

func (m *ServerRepositoryMock) ChangeMemberRole(ctx context.Context, serverID, userID int, role models.Role) error {
	args := m.Called(ctx, serverID, userID, role)
	return args.Error(0)
}

func (m *ServerRepositoryMock) RemoveMember(ctx context.Context, serverID, userID int) error {
	args := m.Called(ctx, serverID, userID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, email, passwordHash, displayName string) (models.User, error) {
	args := m.Called(ctx, username, email, passwordHash, displayName)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, selfID int, search string, page, limit int) ([]models.PublicUser, int, error) {
	args := m.Called(ctx, selfID, search, page, limit)
	var list []models.PublicUser
	if val := args.Get(0); val != nil {
		list = val.([]models.PublicUser)
	}
	return list, args.Int(1), args.Error(2)
}

func (m *UserRepositoryMock) SetRefreshToken(ctx context.Context, userID int, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *UserRepositoryMock) ListFriends(ctx context.Context, userID int) ([]models.PublicUser, error) {
	args := m.Called(ctx, userID)
	var list []models.PublicUser
	if val := args.Get(0); val != nil {
		list = val.([]models.PublicUser)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) AreFriends(ctx context.Context, userID, otherID int) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}

type FriendRequestRepositoryMock struct {
	mock.Mock
}

func (m *FriendRequestRepositoryMock) CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	var request models.FriendRequest
	if val := args.Get(0); val != nil {
		request = val.(models.FriendRequest)
	}
	return request, args.Error(1)
}

func (m *FriendRequestRepositoryMock) GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID)
	var request models.FriendRequest
	if val := args.Get(0); val != nil {
		request = val.(models.FriendRequest)
	}
	return request, args.Error(1)
}

func (m *FriendRequestRepositoryMock) RequestViewByID(ctx context.Context, requestID int) (models.FriendRequestView, error) {
	args := m.Called(ctx, requestID)
	var view models.FriendRequestView
	if val := args.Get(0); val != nil {
		view = val.(models.FriendRequestView)
	}
	return view, args.Error(1)
}

func (m *FriendRequestRepositoryMock) ListPending(ctx context.Context, receiverID int) ([]models.FriendRequestView, error) {
	args := m.Called(ctx, receiverID)
	var list []models.FriendRequestView
	if val := args.Get(0); val != nil {
		list = val.([]models.FriendRequestView)
	}
	return list, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Accept(ctx context.Context, requestID int) (models.Chat, error) {
	args := m.Called(ctx, requestID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Reject(ctx context.Context, requestID int) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

type EmitterMock struct {
	mock.Mock
}

func (m *EmitterMock) EmitToUser(ctx context.Context, userID int, event string, payload any) {
	m.Called(ctx, userID, event, payload)
}

func (m *EmitterMock) EmitToUsers(ctx context.Context, userIDs []int, event string, payload any) {
	m.Called(ctx, userIDs, event, payload)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, localPath string) (string, error) {
	args := m.Called(ctx, localPath)
	return args.String(0), args.Error(1)
}

var (
	_ repositories.ChatRepository          = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository       = (*MessageRepositoryMock)(nil)
	_ repositories.ServerRepository        = (*ServerRepositoryMock)(nil)
	_ repositories.UserRepository          = (*UserRepositoryMock)(nil)
	_ repositories.FriendRequestRepository = (*FriendRequestRepositoryMock)(nil)
	_ ws.Emitter                           = (*EmitterMock)(nil)
	_ storage.Uploader                     = (*UploaderMock)(nil)
)
