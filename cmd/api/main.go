package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/kisansarathi/sarathi-chat/internal/config"
	"github.com/kisansarathi/sarathi-chat/internal/db"
	"github.com/kisansarathi/sarathi-chat/internal/handlers"
	"github.com/kisansarathi/sarathi-chat/internal/middleware"
	"github.com/kisansarathi/sarathi-chat/internal/models"
	"github.com/kisansarathi/sarathi-chat/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis(cfg.RedisAddr)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub()
	bridge := realtime.NewBridge(rdb, hub)
	go hub.Run()
	go bridge.Listen(context.Background())

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		log.Fatal(err)
	}

	chatH := handlers.NewChatHandler(gdb, hub, rdb, cfg.PageSize, "./uploads")

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://127.0.0.1:3000, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Static("/uploads", "./uploads")

	api := app.Group("/api")

	protected := api.Group("/",
		middleware.JWTBearer(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	// admins work through the CMS, chat is for marketplace roles
	chat := protected.Group("/chat",
		middleware.RequireRoles("farmer", "buyer", "vendor", "expert"),
	)

	chat.Post("/conversations", chatH.CreateOrGetConversation)
	chat.Get("/conversations", chatH.GetConversations)
	chat.Get("/conversations/:id/messages", chatH.GetMessages)
	chat.Post("/conversations/:id/messages", chatH.SendMessage)
	chat.Patch("/conversations/:id/read", chatH.MarkAsRead)
	chat.Get("/unread", chatH.GetUnreadTotal)
	chat.Get("/presence", chatH.GetPresence)
	chat.Get("/users", chatH.SearchUsers)
	chat.Post("/upload", chatH.UploadFile)

	// websocket auth happens via query token, not the bearer middleware
	app.Get("/ws/chat",
		handlers.WSUpgradeMiddleware,
		handlers.WSAuthMiddleware(cfg.JWTSecret),
		websocket.New(chatH.WebSocketHandler(cfg.HeartbeatInterval)),
	)

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
