package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"harborchat/internal/auth"
	"harborchat/internal/config"
	"harborchat/internal/db"
	"harborchat/internal/handlers"
	"harborchat/internal/middleware"
	"harborchat/internal/observability"
	"harborchat/internal/rabbitmq"
	"harborchat/internal/repositories"
	"harborchat/internal/storage"
	"harborchat/internal/telemetry"
	"harborchat/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), "harborchat", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	if cfg.AMQPURL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("event publisher unavailable, events disabled: %v", err)
		} else {
			observability.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.harborchat", "harborchat", cfg.Environment)

	uploader, err := storage.NewDiskUploader(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("failed to prepare upload dir: %v", err)
	}

	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	userRepo := repositories.NewUserRepo(database)
	requestRepo := repositories.NewFriendRequestRepo(database)
	serverRepo := repositories.NewServerRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	gateway := ws.NewGateway()

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	userHandler := handlers.NewUserHandler(userRepo, requestRepo, chatRepo, gateway, audit)
	serverHandler := handlers.NewServerHandler(serverRepo, userRepo, uploader, audit)
	chatHandler := handlers.NewChatHandler(chatRepo, serverRepo, userRepo, gateway, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, chatRepo, uploader, gateway, audit)
	wsHandler := ws.NewHandler(gateway, tokens, userRepo)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORSOrigin))
	router.Use(otelgin.Middleware("harborchat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	api := router.Group("/api/v1")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/auth/logout", authMiddleware, authHandler.Logout)

		api.GET("/users/search", authMiddleware, userHandler.SearchUsers)
		api.GET("/users/friends", authMiddleware, userHandler.ListFriends)
		api.GET("/users/friend-requests", authMiddleware, userHandler.ListInvitations)
		api.POST("/users/friend-requests/:receiver_id", authMiddleware, userHandler.SendFriendRequest)
		api.PATCH("/users/friend-requests/:request_id", authMiddleware, userHandler.UpdateFriendRequestStatus)

		api.POST("/servers", authMiddleware, serverHandler.CreateServer)
		api.GET("/servers", authMiddleware, serverHandler.ListServers)
		api.PATCH("/servers/:server_id/members", authMiddleware, serverHandler.AddMembers)
		api.PATCH("/servers/:server_id/members/:user_id/role", authMiddleware, serverHandler.ChangeMemberRole)
		api.DELETE("/servers/:server_id/members/:user_id", authMiddleware, serverHandler.RemoveMember)
		api.POST("/servers/:server_id/chats", authMiddleware, chatHandler.CreateGroupChat)
		api.GET("/servers/:server_id/chats", authMiddleware, chatHandler.ListGroupChats)

		api.GET("/chats", authMiddleware, chatHandler.ListDirectChats)
		api.POST("/chats/direct/:receiver_id", authMiddleware, chatHandler.CreateOrGetDirectChat)
		api.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChatDetails)
		api.PATCH("/chats/:chat_id/name", authMiddleware, chatHandler.RenameGroupChat)
		api.DELETE("/chats/:chat_id", authMiddleware, chatHandler.DeleteGroupChat)
		api.PATCH("/chats/:chat_id/participants/:user_id", authMiddleware, chatHandler.AddParticipant)
		api.DELETE("/chats/:chat_id/participants/:user_id", authMiddleware, chatHandler.RemoveParticipant)
		api.DELETE("/chats/:chat_id/leave", authMiddleware, chatHandler.LeaveGroupChat)

		api.GET("/messages/:chat_id", authMiddleware, messageHandler.ListMessages)
		api.POST("/messages/:chat_id", authMiddleware, messageHandler.SendMessage)
		api.PATCH("/messages/:chat_id/:message_id", authMiddleware, messageHandler.DeleteOrEditMessage)
	}

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.Static("/uploads", cfg.UploadDir)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
