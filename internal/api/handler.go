package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sim31/fractalgram/internal/models"
	"github.com/sim31/fractalgram/internal/repository"
	"github.com/sim31/fractalgram/internal/service"
)

type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

func httpError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPrecondition), errors.Is(err, repository.ErrUnavailable):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func reqCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 10*time.Second)
}

func (h *Handlers) listPlatforms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "data": h.svc.Platforms()})
}

func (h *Handlers) chatIndex(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ix, err := h.svc.IndexSnapshot(ctx, c.Params("chat_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": ix})
}

func (h *Handlers) chatResults(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.svc.Results(ctx, c.Params("chat_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": res})
}

func (h *Handlers) chatRoster(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	roster, err := h.svc.Roster(ctx, c.Params("chat_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": roster})
}

func (h *Handlers) sendPrompt(c *fiber.Ctx) error {
	var req struct {
		Platform string `json:"platform"`
		Message  string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.SendAccountPrompt(ctx, c.Params("chat_id"), req.Platform, req.Message); err != nil {
		return httpError(c, err)
	}
	return c.Status(202).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) createRankingPoll(c *fiber.Ctx) error {
	var req struct {
		Rank models.Rank `json:"rank"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.CreateRankingPoll(ctx, c.Params("chat_id"), req.Rank); err != nil {
		return httpError(c, err)
	}
	return c.Status(202).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) createDelegatePoll(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.CreateDelegatePoll(ctx, c.Params("chat_id")); err != nil {
		return httpError(c, err)
	}
	return c.Status(202).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) startReport(c *fiber.Ctx) error {
	r, err := h.svc.StartReport(c.Params("chat_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": r})
}

func (h *Handlers) getReport(c *fiber.Ctx) error {
	r, err := h.svc.GetReport(c.Params("report_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": r})
}

// selectReportPlatform accepts a preset name, a custom platform, or an
// explicit skip. Exactly one of the three is expected.
func (h *Handlers) selectReportPlatform(c *fiber.Ctx) error {
	var req struct {
		Name     string                  `json:"name"`
		Platform *models.ExtPlatformInfo `json:"platform"`
		None     bool                    `json:"none"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	var platform *models.ExtPlatformInfo
	switch {
	case req.None:
	case req.Platform != nil:
		platform = req.Platform
	case req.Name != "":
		p, ok := h.svc.PlatformByName(req.Name)
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "unknown platform preset"})
		}
		platform = &p
	default:
		return c.Status(400).JSON(fiber.Map{"error": "name, platform or none is required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.svc.SelectReportPlatform(ctx, c.Params("report_id"), platform)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": r})
}

func (h *Handlers) setGroupNumber(c *fiber.Ctx) error {
	var req struct {
		GroupNumber int `json:"group_number"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	r, err := h.svc.SetReportGroupNumber(c.Params("report_id"), req.GroupNumber)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": r})
}

func (h *Handlers) reportMessage(c *fiber.Ctx) error {
	text, err := h.svc.ReportMessage(c.Params("report_id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": fiber.Map{"text": text}})
}

func (h *Handlers) submitReport(c *fiber.Ctx) error {
	var req struct {
		Text   string `json:"text"`
		Pinned bool   `json:"pinned"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.SubmitReport(ctx, c.Params("report_id"), req.Text, req.Pinned); err != nil {
		return httpError(c, err)
	}
	return c.Status(202).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) cancelReport(c *fiber.Ctx) error {
	if err := h.svc.CancelReport(c.Params("report_id")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
