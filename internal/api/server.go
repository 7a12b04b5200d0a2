package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/sim31/fractalgram/internal/auth"
	"github.com/sim31/fractalgram/internal/service"
	"github.com/sim31/fractalgram/internal/ws"
)

func NewServer(svc *service.Service, jv *auth.JWTValidator, wsrv *ws.Server) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())
	h := NewHandlers(svc)

	api := app.Group("/v1")

	api.Use(func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(401).JSON(fiber.Map{"error": "invalid auth"})
		}
		token := hdr[len(pref):]
		sub, err := jv.Validate(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", sub)
		return c.Next()
	})

	api.Get("/platforms", h.listPlatforms)

	api.Get("/chats/:chat_id/index", h.chatIndex)
	api.Get("/chats/:chat_id/results", h.chatResults)
	api.Get("/chats/:chat_id/roster", h.chatRoster)
	api.Post("/chats/:chat_id/prompts", h.sendPrompt)
	api.Post("/chats/:chat_id/polls/ranking", h.createRankingPoll)
	api.Post("/chats/:chat_id/polls/delegate", h.createDelegatePoll)
	api.Post("/chats/:chat_id/reports", h.startReport)

	api.Get("/reports/:report_id", h.getReport)
	api.Post("/reports/:report_id/platform", h.selectReportPlatform)
	api.Post("/reports/:report_id/group-number", h.setGroupNumber)
	api.Get("/reports/:report_id/message", h.reportMessage)
	api.Post("/reports/:report_id/submit", h.submitReport)
	api.Delete("/reports/:report_id", h.cancelReport)

	if wsrv != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(wsrv.HandleWS()))
	}

	return app
}
