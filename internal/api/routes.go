package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp собирает fiber.App с middleware и маршрутами.
func NewApp(h *Handler, allowedOrigins []string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    50 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins, ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	RegisterRoutes(app, h)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/", h.Root)
	app.Get("/health", h.Health)
	app.Get("/models", h.ListModels)

	api := app.Group("/api")
	api.Post("/upload", h.Upload)
	api.Get("/documents", h.ListDocuments)
	api.Get("/documents/chunks", h.ListChunks)
	api.Delete("/documents", h.ClearDocuments)
	api.Post("/chat", h.Chat)
	api.Get("/conversations", h.Conversations)
	api.Get("/conversations/:token/messages", h.Messages)
}
